package models

// PlaybookQuestion is one fixed question in a playbook batch.
type PlaybookQuestion struct {
	ID       string `json:"id" yaml:"id"`
	Display  string `json:"display" yaml:"display"`
	Prompt   string `json:"prompt" yaml:"prompt"`
	PageSize int    `json:"pageSize,omitempty" yaml:"pageSize,omitempty"`
}

// PlaybookRequest is the /rag/playbook request body.
type PlaybookRequest struct {
	TenderID       string             `json:"tenderId"`
	SourceURIs     []string           `json:"sourceUris,omitempty"`
	RagFileIDs     []string           `json:"ragFileIds,omitempty"`
	Questions      []PlaybookQuestion `json:"questions,omitempty"`
	ForgetAfterRun bool               `json:"forgetAfterRun,omitempty"`
	PageSize       int                `json:"pageSize,omitempty"`
}

// PlaybookResult is the outcome of one playbook question.
type PlaybookResult struct {
	QuestionID string        `json:"questionId"`
	Question   string        `json:"question"`
	Answers    []RagAnswer   `json:"answers"`
	Documents  []RagDocument `json:"documents"`
}

// PlaybookResponse is the /rag/playbook response body. OutputURI points at the
// persisted JSON artifact holding all results.
type PlaybookResponse struct {
	Results   []PlaybookResult `json:"results"`
	OutputURI string           `json:"outputUri,omitempty"`
	RagFiles  []RagFileHandle  `json:"ragFiles"`
}

// StructuredEntry is one (label, value) pair extracted verbatim by the direct
// document-grounded generation pass.
type StructuredEntry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}
