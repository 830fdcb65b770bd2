package models

// Context is one retrieved passage from the corpus.
type Context struct {
	Text      string  `json:"text"`
	SourceURI string  `json:"sourceUri"`
	Distance  float64 `json:"distance,omitempty"`
	PageLabel string  `json:"pageLabel,omitempty"`
}

// CitationSource points at the document a citation is grounded in.
type CitationSource struct {
	SourceURI string `json:"sourceUri"`
}

// Citation attributes a span of an answer to one or more sources.
type Citation struct {
	StartIndex *int             `json:"startIndex,omitempty"`
	EndIndex   *int             `json:"endIndex,omitempty"`
	Sources    []CitationSource `json:"sources,omitempty"`
}

// Evidence is a human-readable grounding entry derived from citations.
type Evidence struct {
	DocID     string   `json:"docId,omitempty"`
	DocTitle  string   `json:"docTitle,omitempty"`
	DocURI    string   `json:"docUri,omitempty"`
	PageLabel string   `json:"pageLabel,omitempty"`
	Snippet   string   `json:"snippet,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
}

// RagAnswer is generated answer text with citations and derived evidence.
type RagAnswer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	Evidence  []Evidence `json:"evidence,omitempty"`
}

// RagDocument is a retrieved context deduplicated by source URI.
type RagDocument struct {
	ID       string         `json:"id,omitempty"`
	URI      string         `json:"uri,omitempty"`
	Title    string         `json:"title,omitempty"`
	Snippet  string         `json:"snippet,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RagQueryRequest is the /rag/query request body.
type RagQueryRequest struct {
	TenderID       string   `json:"tenderId"`
	Question       string   `json:"question"`
	ConversationID string   `json:"conversationId,omitempty"`
	PageSize       int      `json:"pageSize,omitempty"`
	SourceURIs     []string `json:"sourceUris,omitempty"`
	RagFileIDs     []string `json:"ragFileIds,omitempty"`
}

// RagQueryResponse is the /rag/query response body.
type RagQueryResponse struct {
	Answers   []RagAnswer   `json:"answers"`
	Documents []RagDocument `json:"documents"`
}

// RagFileHandle pairs a corpus file name with the source it was imported from.
type RagFileHandle struct {
	RagFileName string `json:"ragFileName"`
	SourceURI   string `json:"sourceUri,omitempty"`
}

// RagDeleteRequest is the /rag/files/delete request body.
type RagDeleteRequest struct {
	RagFileIDs []string `json:"ragFileIds"`
}

// RagDeleteResponse collects best-effort deletion outcomes.
type RagDeleteResponse struct {
	Deleted []string `json:"deleted"`
	Errors  []string `json:"errors"`
}
