// Package llm provides generative model access using langchaingo.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tenderwise/tenderflow/internal/config"
	"github.com/tenderwise/tenderflow/internal/metrics"
)

// NotFoundSentinel is what the model is instructed to return when the
// requested information is absent from the supplied material.
const NotFoundSentinel = "NOT_FOUND"

// Model wraps a langchaingo LLM for grounded extraction.
type Model struct {
	llm       llms.Model
	modelName string
	collector *metrics.Collector
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config, collector *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx)
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		model, err = bedrock.New(
			bedrock.WithModel(cfg.LLMModel),
			bedrock.WithClient(client),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
		collector: collector,
	}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Generate generates text from a prompt at temperature 0.
func (m *Model) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	start := time.Now()
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt,
		llms.WithTemperature(0),
		llms.WithMaxTokens(maxTokens),
	)
	if m.collector != nil {
		m.collector.Record(metrics.OpGeneration, time.Since(start), err)
	}
	if err != nil {
		return "", classifyBackendError(fmt.Errorf("generate: %w", err))
	}
	return response, nil
}

// ExtractSpan asks the model for the exact text span from the supplied
// contexts that answers the question, or the NOT_FOUND sentinel. Each context
// is indexed and tagged with its source URI so attribution can follow.
func (m *Model) ExtractSpan(ctx context.Context, question string, contexts []ContextSection) (string, error) {
	prompt := buildSpanPrompt(question, contexts)
	answer, err := m.Generate(ctx, prompt, 256)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// ContextSection is one retrieved passage presented to the model.
type ContextSection struct {
	Text      string
	SourceURI string
}

func buildSpanPrompt(question string, contexts []ContextSection) string {
	var sections []string
	for i, ctx := range contexts {
		if ctx.Text == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("[Source %d] URI: %s\n%s", i+1, ctx.SourceURI, ctx.Text))
	}
	promptContext := "(no context)"
	if len(sections) > 0 {
		promptContext = strings.Join(sections, "\n\n")
	}

	instruction := "Return the exact text span from the context that answers the question. " +
		"Do not paraphrase or summarize. If no relevant span is present, respond with " + NotFoundSentinel + "."

	return fmt.Sprintf("%s\n\nQuestion:\n%s\n\nContext:\n%s", instruction, question, promptContext)
}
