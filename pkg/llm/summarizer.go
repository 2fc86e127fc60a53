package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/readmit/internal/models"
	"github.com/xhad/readmit/internal/types"
	"github.com/xhad/readmit/pkg/processor"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
)

// DefaultPromptTemplate asks for the two guidance sections. It receives
// .Term and .Context.
const DefaultPromptTemplate = `You are an expert summarizer. Your task is to extract key clinical and administrative insights.
Disease: {{.Term}}
Summarize the following abstracts:
{{.Context}}
Output two sections:
1. Clinical Strategy: (for doctors)
2. Administrative Actions: (for hospital administrators)`

// ErrNoArticles is returned instead of querying the service with an empty
// context.
var ErrNoArticles = errors.New("no articles to summarize")

// SummarizerConfig represents the configuration for a summarizer.
type SummarizerConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string // Ollama server URL
	Temperature    float64
	MaxTokens      int
	PromptTemplate string
	Processor      *processor.Processor
}

// Summarizer turns a term's articles into guidance text with one
// generation call.
type Summarizer struct {
	config    SummarizerConfig
	llm       llms.Model
	prompt    *template.Template
	processor *processor.Processor
}

// NewWithConfig creates a Summarizer backed by the configured provider.
func NewWithConfig(ctx context.Context, config SummarizerConfig) (*Summarizer, error) {
	if config.Provider == "" {
		config.Provider = ProviderGoogleAI
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case ProviderGoogleAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("googleai provider requires an API key")
		}
		if config.Model == "" {
			config.Model = "gemini-1.5-flash"
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(config.APIKey),
			googleai.WithDefaultModel(config.Model))
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "mistral" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		model, err = ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(model, config)
}

// NewWithModel creates a Summarizer around an existing model.
func NewWithModel(model llms.Model, config SummarizerConfig) (*Summarizer, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.PromptTemplate == "" {
		config.PromptTemplate = DefaultPromptTemplate
	}

	prompt, err := template.New("prompt").Option("missingkey=error").Parse(config.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}

	proc := config.Processor
	if proc == nil {
		p := processor.NewWithConfig(processor.ProcessorConfig{})
		proc = &p
	}

	return &Summarizer{
		config:    config,
		llm:       model,
		prompt:    prompt,
		processor: proc,
	}, nil
}

// Prompt renders the prompt sent for term.
func (s *Summarizer) Prompt(term string, articles []models.Article) (string, error) {
	var b strings.Builder
	err := s.prompt.Execute(&b, struct {
		Term    string
		Context string
	}{
		Term:    term,
		Context: s.processor.Context(articles),
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return b.String(), nil
}

// Summarize generates the summary for term from its articles.
func (s *Summarizer) Summarize(ctx context.Context, term string, articles []models.Article) (models.Summary, error) {
	op := "summarize " + term
	if len(articles) == 0 {
		return models.Summary{}, types.Wrap(types.KindParse, op, ErrNoArticles)
	}

	prompt, err := s.Prompt(term, articles)
	if err != nil {
		return models.Summary{}, types.Wrap(types.KindParse, op, err)
	}

	options := []llms.CallOption{llms.WithMaxTokens(s.config.MaxTokens)}
	if s.config.Temperature > 0 {
		options = append(options, llms.WithTemperature(s.config.Temperature))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt, options...)
	if err != nil {
		return models.Summary{}, types.Wrap(types.KindService, op, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return models.Summary{}, types.Wrap(types.KindService, op, errors.New("empty response"))
	}

	return models.Summary{Term: term, Text: text}, nil
}
