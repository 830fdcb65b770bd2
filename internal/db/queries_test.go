package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSetClauses(t *testing.T) {
	clauses, vars, err := buildSetClauses("tasks.`extract.emd`.", map[string]any{
		"status":  "succeeded",
		"retries": 2,
	})
	require.NoError(t, err)

	// Deterministic alphabetical order.
	assert.Equal(t, []string{
		"tasks.`extract.emd`.retries = $f0",
		"tasks.`extract.emd`.status = $f1",
	}, clauses)
	assert.Equal(t, 2, vars["f0"])
	assert.Equal(t, "succeeded", vars["f1"])
}

func TestBuildSetClausesRejectsBadFieldName(t *testing.T) {
	_, _, err := buildSetClauses("", map[string]any{"status = 'x'; DELETE": 1})
	require.Error(t, err)
}
