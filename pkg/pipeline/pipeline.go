// Package pipeline runs query terms one at a time through retrieval,
// summarization and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/xhad/readmit/internal/models"
	"github.com/xhad/readmit/internal/types"
	"github.com/xhad/readmit/pkg/citations"
	"github.com/xhad/readmit/pkg/export"
)

type Stage string

const (
	StageRetrieve  Stage = "retrieve"
	StageSummarize Stage = "summarize"
)

// Failure records a term that was skipped and why.
type Failure struct {
	Term  string
	Stage Stage
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %q: %v", f.Stage, f.Term, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Report is the outcome of a run. Summaries holds one entry per processed
// term in first-seen order.
type Report struct {
	Summaries []models.Summary
	Failures  []Failure
	Articles  int
}

// Processed lists the terms that completed every step.
func (r *Report) Processed() []string {
	terms := make([]string, 0, len(r.Summaries))
	for _, s := range r.Summaries {
		terms = append(terms, s.Term)
	}
	return terms
}

// Outputs receive the finalized artifacts. A nil writer skips that artifact.
type Outputs struct {
	Abstracts io.Writer
	Deck      io.Writer
}

type Config struct {
	Retriever     types.Retriever
	Summarizer    types.Summarizer
	Normalizer    types.Normalizer
	Observer      Observer
	Logger        *slog.Logger
	OverviewTitle string
}

type Pipeline struct {
	config Config
	logger *slog.Logger
}

func New(config Config) (*Pipeline, error) {
	if config.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if config.Summarizer == nil {
		return nil, errors.New("summarizer is required")
	}
	if config.OverviewTitle == "" {
		config.OverviewTitle = export.DefaultOverviewTitle
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		config: config,
		logger: logger,
	}, nil
}

// Run processes terms strictly in order. A term that fails retrieval or
// summarization is reported and skipped; the run continues. Processed
// terms are recorded in memory, appended to the abstracts document, and
// given a slide. Export failures and cancellation end the run.
func (p *Pipeline) Run(ctx context.Context, terms []string, memory *citations.Memory, out Outputs) (*Report, error) {
	if memory == nil {
		return nil, errors.New("citation memory is required")
	}

	report := &Report{}
	pdf := export.NewPDFExporter()
	seen := make(map[string]int)

	p.emit(Event{Kind: EventStarted, Message: fmt.Sprintf("Processing %d terms", len(terms))})

	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		p.emit(Event{Kind: EventTermStarted, Term: term, Message: "Processing: " + term})

		summary, articles, failure := p.processTerm(ctx, term)
		if failure != nil {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Failures = append(report.Failures, *failure)
			p.logger.Warn("term failed", "term", term, "stage", failure.Stage,
				"kind", types.KindOf(failure.Err).String(), "error", failure.Err)
			p.emit(Event{Kind: EventTermFailed, Term: term, Message: failure.Error(), Err: failure.Err})
			continue
		}

		refs := models.Citations(articles)
		memory.Record(term, refs)

		for _, a := range articles {
			if err := pdf.AddArticle(a); err != nil {
				return report, err
			}
		}
		report.Articles += len(articles)

		if i, ok := seen[term]; ok {
			report.Summaries[i] = summary
		} else {
			seen[term] = len(report.Summaries)
			report.Summaries = append(report.Summaries, summary)
		}

		p.emit(Event{Kind: EventSummary, Term: term, Message: term + " Summary", Summary: summary.Text, Citations: refs})
	}

	if out.Abstracts != nil {
		if err := pdf.Write(out.Abstracts); err != nil {
			return report, err
		}
	}
	if out.Deck != nil {
		deck := export.BuildDeck(report.Summaries, p.config.OverviewTitle)
		if err := deck.Write(out.Deck); err != nil {
			return report, err
		}
	}

	p.logger.Info("run finished", "terms", len(terms), "processed", len(report.Summaries),
		"failed", len(report.Failures), "articles", report.Articles)
	p.emit(Event{Kind: EventFinished, Message: fmt.Sprintf("Processed %d of %d terms", len(report.Summaries), len(terms))})

	return report, nil
}

func (p *Pipeline) processTerm(ctx context.Context, term string) (models.Summary, []models.Article, *Failure) {
	articles, err := p.config.Retriever.Retrieve(ctx, term)
	if err != nil {
		return models.Summary{}, nil, &Failure{Term: term, Stage: StageRetrieve, Err: err}
	}
	if p.config.Normalizer != nil {
		articles = p.config.Normalizer.Process(articles)
	}
	p.logger.Debug("retrieved articles", "term", term, "count", len(articles))
	p.emit(Event{Kind: EventRetrieved, Term: term, Message: fmt.Sprintf("Found %d articles for %s", len(articles), term)})

	summary, err := p.config.Summarizer.Summarize(ctx, term, articles)
	if err != nil {
		return models.Summary{}, nil, &Failure{Term: term, Stage: StageSummarize, Err: err}
	}
	summary.Term = term

	return summary, articles, nil
}

func (p *Pipeline) emit(e Event) {
	if p.config.Observer != nil {
		p.config.Observer.Observe(e)
	}
}
