package server

import (
	"errors"
	"net/http"

	"github.com/tenderwise/tenderflow/internal/db"
	"github.com/tenderwise/tenderflow/internal/llm"
	"github.com/tenderwise/tenderflow/internal/playbook"
	"github.com/tenderwise/tenderflow/internal/rag"
)

// statusForError maps domain errors onto HTTP status codes: invalid
// requests 400, generation quota exhaustion 429, upstream model failures
// 502, missing corpus or unconfigured engine 503.
func statusForError(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion),
		errors.Is(err, playbook.ErrMissingTenderID),
		errors.Is(err, playbook.ErrNoSources):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, llm.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrBackend):
		return http.StatusBadGateway
	case errors.Is(err, rag.ErrNoCorpus),
		errors.Is(err, rag.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
