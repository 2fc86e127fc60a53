package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	switch c.LLM.Provider {
	case ProviderGoogleAI:
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: "API key is required (set GEMINI_API_KEY or llm.api_key_file)",
			})
		}
	case ProviderOllama:
		if c.LLM.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "Ollama base URL is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "model is required",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.BaseURL != "" && !isHTTPURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid base URL",
		})
	}

	// Validate Scraper config
	if !isHTTPURL(c.Scraper.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "scraper.base_url",
			Message: "invalid search base URL",
		})
	}

	if strings.Count(c.Scraper.QueryTemplate, "%s") != 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.query_template",
			Message: "query_template must contain exactly one %s",
		})
	}

	if c.Scraper.ResultLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.result_limit",
			Message: "result_limit must be positive",
		})
	}

	if c.Scraper.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.timeout",
			Message: "timeout cannot be negative",
		})
	}

	// Validate Export config
	files := []struct{ field, name string }{
		{"export.abstracts_file", c.Export.AbstractsFile},
		{"export.deck_file", c.Export.DeckFile},
	}
	for _, f := range files {
		if f.name == "" || strings.ContainsAny(f.name, `/\`) {
			errors = append(errors, ValidationError{
				Field:   f.field,
				Message: "must be a plain file name",
			})
		}
	}

	if c.Export.AbstractsFile != "" && c.Export.AbstractsFile == c.Export.DeckFile {
		errors = append(errors, ValidationError{
			Field:   "export.deck_file",
			Message: "deck_file must differ from abstracts_file",
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
