package rag

import "errors"

var (
	// ErrNotConfigured indicates the engine is missing a retriever or
	// generator and cannot answer queries.
	ErrNotConfigured = errors.New("rag engine not configured")

	// ErrEmptyQuestion indicates the request carried no question text.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrNoCorpus indicates the tender has no imported corpus content.
	ErrNoCorpus = errors.New("no corpus content for tender")
)
