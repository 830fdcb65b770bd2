// Package playbook runs a fixed batch of questions against a tender and
// persists the combined results as an artifact.
package playbook

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tenderwise/tenderflow/internal/models"
)

// DefaultQuestions is the built-in playbook used when no config file is
// provided and the request carries no questions.
var DefaultQuestions = []models.PlaybookQuestion{
	{
		ID:       "document_id",
		Display:  "Document identifier",
		Prompt:   "What is the official identifier or reference number of this tender?",
		PageSize: 4,
	},
	{
		ID:       "submission_deadlines",
		Display:  "Submission deadlines",
		Prompt:   "What are the submission deadlines and other key dates for this tender?",
		PageSize: 10,
	},
}

type questionsFile struct {
	Questions []models.PlaybookQuestion `yaml:"questions"`
}

var (
	questionsMu    sync.Mutex
	questionsCache = make(map[string][]models.PlaybookQuestion)
)

// LoadQuestions reads playbook questions from a YAML file. Results are
// cached per path for the process lifetime. An empty path returns the
// built-in defaults.
func LoadQuestions(path string) ([]models.PlaybookQuestion, error) {
	if path == "" {
		return DefaultQuestions, nil
	}

	questionsMu.Lock()
	defer questionsMu.Unlock()
	if cached, ok := questionsCache[path]; ok {
		return cached, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbook config: %w", err)
	}

	var file questionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse playbook config: %w", err)
	}
	if len(file.Questions) == 0 {
		return nil, fmt.Errorf("playbook config %s contains no questions", path)
	}
	for i, q := range file.Questions {
		if q.ID == "" || q.Prompt == "" {
			return nil, fmt.Errorf("playbook config %s: question %d missing id or prompt", path, i)
		}
	}

	questionsCache[path] = file.Questions
	return file.Questions, nil
}

// wantsScheduleFilter reports whether a question's structured entries
// should be restricted to date/time-like values.
func wantsScheduleFilter(q models.PlaybookQuestion) bool {
	id := strings.ToLower(q.ID)
	return strings.Contains(id, "deadline") || strings.Contains(id, "schedule") || strings.Contains(id, "date")
}
