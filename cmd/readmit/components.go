package main

import (
	"context"
	"fmt"
	"log/slog"

	cfgPkg "github.com/xhad/readmit/pkg/config"
	"github.com/xhad/readmit/pkg/llm"
	"github.com/xhad/readmit/pkg/processor"
	"github.com/xhad/readmit/pkg/scraper"
)

type components struct {
	scraper    *scraper.Scraper
	summarizer *llm.Summarizer
	processor  *processor.Processor
}

// buildComponents wires the retriever, normalizer and summarizer from cfg.
// onFetch, when set, is called after every page request.
func buildComponents(ctx context.Context, cfg *cfgPkg.Config, logger *slog.Logger, onFetch func(url string)) (*components, error) {
	scraper, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:       cfg.Scraper.BaseURL,
		QueryTemplate: cfg.Scraper.QueryTemplate,
		Limit:         cfg.Scraper.ResultLimit,
		Timeout:       cfg.Scraper.Timeout,
		UserAgent:     cfg.Scraper.UserAgent,
		Placeholder:   cfg.Scraper.Placeholder,
		Logger:        logger.With("component", "scraper"),
		OnProgress:    onFetch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		Placeholder: cfg.Scraper.Placeholder,
	})

	summarizer, err := llm.NewWithConfig(ctx, llm.SummarizerConfig{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		PromptTemplate: cfg.LLM.PromptTemplate,
		Processor:      &proc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
	}

	return &components{
		scraper:    scraper,
		summarizer: summarizer,
		processor:  &proc,
	}, nil
}
