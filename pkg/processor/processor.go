package processor

import (
	"fmt"
	"strings"

	"github.com/xhad/readmit/internal/models"
)

type ProcessorConfig struct {
	Placeholder string
	// NoisePatterns are removed verbatim from titles and abstracts.
	NoisePatterns []string
	// Separator joins the per-article blocks of a prompt context.
	Separator string
}

// Processor normalises scraped articles and assembles the text handed to
// the summarizer.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.Placeholder == "" {
		config.Placeholder = "No abstract available."
	}
	if config.Separator == "" {
		config.Separator = "\n\n"
	}

	return Processor{
		config: config,
	}
}

// Process returns cleaned copies of the articles. Order and count are
// preserved; an article whose abstract cleans down to nothing carries the
// placeholder.
func (p *Processor) Process(articles []models.Article) []models.Article {
	processed := make([]models.Article, 0, len(articles))

	for _, a := range articles {
		a.Title = p.cleanText(a.Title)
		a.URL = strings.TrimSpace(a.URL)
		a.Abstract = p.cleanText(a.Abstract)
		if a.Abstract == "" {
			a.Abstract = p.config.Placeholder
		}
		processed = append(processed, a)
	}

	return processed
}

// Context renders the articles as "Title: ...\nAbstract: ..." blocks.
func (p *Processor) Context(articles []models.Article) string {
	blocks := make([]string, 0, len(articles))
	for _, a := range articles {
		blocks = append(blocks, fmt.Sprintf("Title: %s\nAbstract: %s", a.Title, a.Abstract))
	}
	return strings.Join(blocks, p.config.Separator)
}

func (p *Processor) cleanText(text string) string {
	for _, pattern := range p.config.NoisePatterns {
		text = strings.ReplaceAll(text, pattern, "")
	}

	// Replace multiple spaces with single space
	return strings.Join(strings.Fields(text), " ")
}
