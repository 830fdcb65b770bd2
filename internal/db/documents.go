package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
)

type parsedDocumentRow struct {
	TenderID string         `json:"tenderId"`
	Document map[string]any `json:"document"`
}

// PutParsedDocument stores the normalized tender document, replacing any
// previous version for the tender.
func (c *Client) PutParsedDocument(ctx context.Context, tenderID string, document map[string]any) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("parsed_document", $tenderId) SET
			tenderId = $tenderId,
			document = $document,
			updatedAt = time::now()
	`, map[string]any{"tenderId": tenderID, "document": document})
	if err != nil {
		return fmt.Errorf("put parsed document: %w", err)
	}
	return nil
}

// GetParsedDocument retrieves the normalized tender document.
// Returns ErrNotFound if the tender has not been normalized yet.
func (c *Client) GetParsedDocument(ctx context.Context, tenderID string) (map[string]any, error) {
	results, err := surrealdb.Query[[]parsedDocumentRow](ctx, c.db, `
		SELECT tenderId, document FROM type::record("parsed_document", $tenderId)
	`, map[string]any{"tenderId": tenderID})
	if err != nil {
		return nil, fmt.Errorf("get parsed document: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("parsed document for tender %q: %w", tenderID, ErrNotFound)
	}
	return (*results)[0].Result[0].Document, nil
}
