package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

// CorpusFileRecord is a source object imported into the retrieval corpus.
type CorpusFileRecord struct {
	FileID      string    `json:"fileId"`
	TenderID    string    `json:"tenderId"`
	SourceURI   string    `json:"sourceUri"`
	DisplayName string    `json:"displayName,omitempty"`
	ChunkCount  int       `json:"chunkCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChunkRecord is one embedded text chunk belonging to a corpus file.
type ChunkRecord struct {
	FileID    string    `json:"fileId"`
	TenderID  string    `json:"tenderId"`
	SourceURI string    `json:"sourceUri"`
	Text      string    `json:"text"`
	PageLabel string    `json:"pageLabel,omitempty"`
	Position  int       `json:"position"`
	Embedding []float32 `json:"embedding"`
}

// RetrievedChunk is a chunk returned from vector retrieval with its
// distance to the query embedding.
type RetrievedChunk struct {
	FileID    string  `json:"fileId"`
	SourceURI string  `json:"sourceUri"`
	Text      string  `json:"text"`
	PageLabel string  `json:"pageLabel,omitempty"`
	Distance  float64 `json:"distance"`
}

// CreateCorpusFile records an imported source object.
func (c *Client) CreateCorpusFile(ctx context.Context, rec CorpusFileRecord) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("corpus_file", $id) CONTENT $rec
	`, map[string]any{"id": rec.FileID, "rec": rec})
	if err != nil {
		return fmt.Errorf("create corpus file: %w", err)
	}
	return nil
}

// InsertChunks stores a batch of embedded chunks.
func (c *Client) InsertChunks(ctx context.Context, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		INSERT INTO chunk $chunks
	`, map[string]any{"chunks": chunks})
	if err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

// ListCorpusFiles returns all corpus files imported for a tender.
func (c *Client) ListCorpusFiles(ctx context.Context, tenderID string) ([]CorpusFileRecord, error) {
	results, err := surrealdb.Query[[]CorpusFileRecord](ctx, c.db, `
		SELECT * FROM corpus_file WHERE tenderId = $tenderId ORDER BY createdAt ASC
	`, map[string]any{"tenderId": tenderID})
	if err != nil {
		return nil, fmt.Errorf("list corpus files: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []CorpusFileRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// ListCorpusFilesByURI returns corpus files for a tender whose source URI is
// in the given set.
func (c *Client) ListCorpusFilesByURI(ctx context.Context, tenderID string, uris []string) ([]CorpusFileRecord, error) {
	if len(uris) == 0 {
		return []CorpusFileRecord{}, nil
	}
	results, err := surrealdb.Query[[]CorpusFileRecord](ctx, c.db, `
		SELECT * FROM corpus_file
		WHERE tenderId = $tenderId AND sourceUri IN $uris
	`, map[string]any{"tenderId": tenderID, "uris": uris})
	if err != nil {
		return nil, fmt.Errorf("list corpus files by uri: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []CorpusFileRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// CountChunks returns the number of chunks stored for a tender.
func (c *Client) CountChunks(ctx context.Context, tenderID string) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, `
		SELECT count() AS count FROM chunk WHERE tenderId = $tenderId GROUP ALL
	`, map[string]any{"tenderId": tenderID})
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// DeleteCorpusFile removes a corpus file and all its chunks.
// Returns the number of file records deleted (0 if not found - idempotent).
func (c *Client) DeleteCorpusFile(ctx context.Context, fileID string) (int, error) {
	if _, err := surrealdb.Query[any](ctx, c.db, `
		DELETE chunk WHERE fileId = $fileId
	`, map[string]any{"fileId": fileID}); err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}

	results, err := surrealdb.Query[[]CorpusFileRecord](ctx, c.db, `
		DELETE type::record("corpus_file", $fileId) RETURN BEFORE
	`, map[string]any{"fileId": fileID})
	if err != nil {
		return 0, fmt.Errorf("delete corpus file: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// RetrieveChunks performs vector KNN retrieval over a tender's chunks.
// If fileIDs is non-empty, only chunks belonging to those files are
// considered. The KNN neighbour count must be a literal, so it is
// formatted into the query.
func (c *Client) RetrieveChunks(
	ctx context.Context,
	tenderID string,
	embedding []float32,
	topK int,
	fileIDs []string,
) ([]RetrievedChunk, error) {
	fileClause := ""
	vars := map[string]any{
		"tenderId": tenderID,
		"emb":      embedding,
	}
	if len(fileIDs) > 0 {
		fileClause = "AND fileId IN $fileIds"
		vars["fileIds"] = fileIDs
	}

	// HNSW with ef=40 for better recall.
	sql := fmt.Sprintf(`
		SELECT fileId, sourceUri, text, pageLabel,
		       vector::distance::knn() AS distance
		FROM chunk
		WHERE tenderId = $tenderId AND embedding <|%d,40|> $emb %s
		ORDER BY distance ASC
	`, topK, fileClause)

	results, err := surrealdb.Query[[]RetrievedChunk](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunks: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []RetrievedChunk{}, nil
	}
	return (*results)[0].Result, nil
}
