package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyBackendError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		quota bool
	}{
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota", errors.New("embedding quota exhausted for project"), true},
		{"resource exhausted", errors.New("rpc error: RESOURCE EXHAUSTED"), true},
		{"http 429", errors.New("unexpected status 429"), true},
		{"overloaded", errors.New("model overloaded, retry later"), true},
		{"generic", errors.New("connection reset by peer"), false},
		{"timeout", errors.New("context deadline exceeded"), false},
		{"wrapped quota", fmt.Errorf("generate: %w", errors.New("Too Many Requests")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyBackendError(tt.err)
			if errors.Is(got, ErrQuotaExhausted) != tt.quota {
				t.Errorf("classifyBackendError(%v) quota = %v, want %v", tt.err, !tt.quota, tt.quota)
			}
			if !tt.quota && !errors.Is(got, ErrBackend) {
				t.Errorf("non-quota error must wrap ErrBackend")
			}
		})
	}
}

func TestClassifyBackendErrorNil(t *testing.T) {
	if classifyBackendError(nil) != nil {
		t.Error("nil error must stay nil")
	}
}

func TestBuildSpanPrompt(t *testing.T) {
	prompt := buildSpanPrompt("When is the submission deadline?", []ContextSection{
		{Text: "Last date: 31 March 2024", SourceURI: "s3://raw/t1/doc.pdf"},
		{Text: "", SourceURI: "s3://raw/t1/empty.pdf"},
	})

	for _, want := range []string{
		"[Source 1] URI: s3://raw/t1/doc.pdf",
		"Last date: 31 March 2024",
		"When is the submission deadline?",
		NotFoundSentinel,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Source 2") {
		t.Error("empty context must be omitted from the prompt")
	}
}

func TestBuildSpanPromptNoContexts(t *testing.T) {
	prompt := buildSpanPrompt("anything", nil)
	if !strings.Contains(prompt, "(no context)") {
		t.Error("prompt must carry the no-context placeholder")
	}
}
