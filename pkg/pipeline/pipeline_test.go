package pipeline_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/readmit/internal/models"
	"github.com/xhad/readmit/internal/types"
	"github.com/xhad/readmit/pkg/citations"
	"github.com/xhad/readmit/pkg/llm"
	"github.com/xhad/readmit/pkg/pipeline"
	"github.com/xhad/readmit/pkg/processor"
)

type fakeRetriever struct {
	articles map[string][]models.Article
	errs     map[string]error
	calls    []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, term string) ([]models.Article, error) {
	f.calls = append(f.calls, term)
	if err := f.errs[term]; err != nil {
		return nil, err
	}
	return f.articles[term], nil
}

type fakeSummarizer struct {
	errs  map[string]error
	calls []string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, term string, articles []models.Article) (models.Summary, error) {
	f.calls = append(f.calls, term)
	if err := f.errs[term]; err != nil {
		return models.Summary{}, err
	}
	return models.Summary{Term: term, Text: fmt.Sprintf("1. Clinical Strategy: %s\n2. Administrative Actions: %d sources", term, len(articles))}, nil
}

func articlesFor(term string, n int) []models.Article {
	out := make([]models.Article, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Article{
			Title:    fmt.Sprintf("%s study %d", term, i),
			URL:      fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s-%d/", strings.ToLower(term), i),
			Abstract: "Abstract text.",
		})
	}
	return out
}

var slidePart = regexp.MustCompile(`^ppt/slides/slide\d+\.xml$`)

func slideCount(t *testing.T, data []byte) int {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	n := 0
	for _, f := range zr.File {
		if slidePart.MatchString(f.Name) {
			n++
		}
	}
	return n
}

func TestParseTerms(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"CHF, Sepsis, UTI, Kidney failure", []string{"CHF", "Sepsis", "UTI", "Kidney failure"}},
		{"  CHF  ", []string{"CHF"}},
		{"CHF,,Sepsis, ,", []string{"CHF", "Sepsis"}},
		{"CHF, CHF", []string{"CHF", "CHF"}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, pipeline.ParseTerms(tt.input))
		})
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := pipeline.New(pipeline.Config{Summarizer: &fakeSummarizer{}})
	assert.Error(t, err)
	_, err = pipeline.New(pipeline.Config{Retriever: &fakeRetriever{}})
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	retriever := &fakeRetriever{articles: map[string][]models.Article{
		"CHF":    articlesFor("CHF", 3),
		"Sepsis": articlesFor("Sepsis", 2),
	}}
	summarizer := &fakeSummarizer{}

	var events []pipeline.Event
	p, err := pipeline.New(pipeline.Config{
		Retriever:  retriever,
		Summarizer: summarizer,
		Observer: pipeline.ObserverFunc(func(e pipeline.Event) {
			events = append(events, e)
		}),
	})
	require.NoError(t, err)

	memory := citations.NewMemory()
	var pdf, deck bytes.Buffer
	report, err := p.Run(context.Background(), []string{"CHF", "Sepsis"}, memory, pipeline.Outputs{Abstracts: &pdf, Deck: &deck})
	require.NoError(t, err)

	// Strictly sequential, in input order
	assert.Equal(t, []string{"CHF", "Sepsis"}, retriever.calls)
	assert.Equal(t, []string{"CHF", "Sepsis"}, summarizer.calls)

	assert.Equal(t, []string{"CHF", "Sepsis"}, report.Processed())
	assert.Empty(t, report.Failures)
	assert.Equal(t, 5, report.Articles)

	// Citation memory mirrors the retriever output
	require.Equal(t, 2, memory.Len())
	for _, term := range []string{"CHF", "Sepsis"} {
		got, ok := memory.Get(term)
		require.True(t, ok)
		assert.Equal(t, models.Citations(retriever.articles[term]), got)
	}

	assert.True(t, bytes.HasPrefix(pdf.Bytes(), []byte("%PDF-")))
	assert.Equal(t, len(report.Summaries)+1, slideCount(t, deck.Bytes()))

	kinds := make([]pipeline.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []pipeline.EventKind{
		pipeline.EventStarted,
		pipeline.EventTermStarted, pipeline.EventRetrieved, pipeline.EventSummary,
		pipeline.EventTermStarted, pipeline.EventRetrieved, pipeline.EventSummary,
		pipeline.EventFinished,
	}, kinds)
	assert.Equal(t, "Processing: CHF", events[1].Message)
	assert.Contains(t, events[3].Summary, "Clinical Strategy: CHF")
	assert.Len(t, events[3].Citations, 3)
}

func TestRunContinuesAfterTermFailure(t *testing.T) {
	retriever := &fakeRetriever{
		articles: map[string][]models.Article{
			"CHF":            articlesFor("CHF", 2),
			"UTI":            articlesFor("UTI", 1),
			"Kidney failure": articlesFor("Kidney", 3),
		},
		errs: map[string]error{
			"Sepsis": types.Wrap(types.KindNetwork, "fetch listing", errors.New("connection reset")),
		},
	}
	summarizer := &fakeSummarizer{errs: map[string]error{
		"UTI": types.Wrap(types.KindService, "summarize UTI", errors.New("quota exceeded")),
	}}

	var failed []string
	p, err := pipeline.New(pipeline.Config{
		Retriever:  retriever,
		Summarizer: summarizer,
		Observer: pipeline.ObserverFunc(func(e pipeline.Event) {
			if e.Kind == pipeline.EventTermFailed {
				failed = append(failed, e.Term)
			}
		}),
	})
	require.NoError(t, err)

	memory := citations.NewMemory()
	var deck bytes.Buffer
	terms := []string{"CHF", "Sepsis", "UTI", "Kidney failure"}
	report, err := p.Run(context.Background(), terms, memory, pipeline.Outputs{Deck: &deck})
	require.NoError(t, err)

	assert.Equal(t, terms, retriever.calls)
	assert.Equal(t, []string{"CHF", "UTI", "Kidney failure"}, summarizer.calls)

	assert.Equal(t, []string{"CHF", "Kidney failure"}, report.Processed())
	assert.Equal(t, []string{"Sepsis", "UTI"}, failed)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, pipeline.StageRetrieve, report.Failures[0].Stage)
	assert.ErrorIs(t, report.Failures[0], types.ErrNetwork)
	assert.Equal(t, pipeline.StageSummarize, report.Failures[1].Stage)
	assert.ErrorIs(t, report.Failures[1], types.ErrService)

	// Only processed terms reach the memory and the deck
	assert.Equal(t, []string{"CHF", "Kidney failure"}, memory.Terms())
	assert.Equal(t, 3, slideCount(t, deck.Bytes()))
	assert.Equal(t, 5, report.Articles)
}

// stubModel counts generation calls.
type stubModel struct{ calls int }

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "summary"}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestRunEmptyDocumentSet(t *testing.T) {
	model := &stubModel{}
	summarizer, err := llm.NewWithModel(model, llm.SummarizerConfig{})
	require.NoError(t, err)

	proc := processor.NewWithConfig(processor.ProcessorConfig{})
	p, err := pipeline.New(pipeline.Config{
		Retriever:  &fakeRetriever{articles: map[string][]models.Article{"CHF": {}, "Sepsis": articlesFor("Sepsis", 1)}},
		Summarizer: summarizer,
		Normalizer: &proc,
	})
	require.NoError(t, err)

	memory := citations.NewMemory()
	var deck bytes.Buffer
	report, err := p.Run(context.Background(), []string{"CHF", "Sepsis"}, memory, pipeline.Outputs{Deck: &deck})
	require.NoError(t, err)

	// CHF is reported, not masked, and the service is only asked about Sepsis
	assert.Equal(t, 1, model.calls)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "CHF", report.Failures[0].Term)
	assert.ErrorIs(t, report.Failures[0], llm.ErrNoArticles)
	assert.ErrorIs(t, report.Failures[0], types.ErrParse)

	assert.Equal(t, []string{"Sepsis"}, memory.Terms())
	assert.Equal(t, 2, slideCount(t, deck.Bytes()))
}

func TestRunDuplicateTerms(t *testing.T) {
	retriever := &fakeRetriever{articles: map[string][]models.Article{
		"CHF": articlesFor("CHF", 2),
		"UTI": articlesFor("UTI", 1),
	}}
	p, err := pipeline.New(pipeline.Config{Retriever: retriever, Summarizer: &fakeSummarizer{}})
	require.NoError(t, err)

	memory := citations.NewMemory()
	var deck bytes.Buffer
	report, err := p.Run(context.Background(), []string{"CHF", "UTI", "CHF"}, memory, pipeline.Outputs{Deck: &deck})
	require.NoError(t, err)

	assert.Len(t, retriever.calls, 3)
	assert.Equal(t, []string{"CHF", "UTI"}, report.Processed())
	assert.Equal(t, []string{"CHF", "UTI"}, memory.Terms())
	assert.Equal(t, 3, slideCount(t, deck.Bytes()))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	retriever := &fakeRetriever{articles: map[string][]models.Article{"CHF": articlesFor("CHF", 1)}}
	p, err := pipeline.New(pipeline.Config{
		Retriever:  retriever,
		Summarizer: &fakeSummarizer{},
		Observer: pipeline.ObserverFunc(func(e pipeline.Event) {
			if e.Kind == pipeline.EventSummary {
				cancel()
			}
		}),
	})
	require.NoError(t, err)

	report, err := p.Run(ctx, []string{"CHF", "Sepsis"}, citations.NewMemory(), pipeline.Outputs{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"CHF"}, retriever.calls)
	assert.Equal(t, []string{"CHF"}, report.Processed())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestRunExportFailure(t *testing.T) {
	p, err := pipeline.New(pipeline.Config{
		Retriever:  &fakeRetriever{articles: map[string][]models.Article{"CHF": articlesFor("CHF", 1)}},
		Summarizer: &fakeSummarizer{},
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), []string{"CHF"}, citations.NewMemory(), pipeline.Outputs{Deck: failingWriter{}})
	assert.ErrorIs(t, err, types.ErrExport)
}

func TestRunRequiresMemory(t *testing.T) {
	p, err := pipeline.New(pipeline.Config{Retriever: &fakeRetriever{}, Summarizer: &fakeSummarizer{}})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), []string{"CHF"}, nil, pipeline.Outputs{})
	assert.Error(t, err)
}

func TestRunsDoNotShareState(t *testing.T) {
	retriever := &fakeRetriever{articles: map[string][]models.Article{
		"CHF": articlesFor("CHF", 1),
		"UTI": articlesFor("UTI", 1),
	}}
	p, err := pipeline.New(pipeline.Config{Retriever: retriever, Summarizer: &fakeSummarizer{}})
	require.NoError(t, err)

	first := citations.NewMemory()
	_, err = p.Run(context.Background(), []string{"CHF"}, first, pipeline.Outputs{})
	require.NoError(t, err)

	second := citations.NewMemory()
	report, err := p.Run(context.Background(), []string{"UTI"}, second, pipeline.Outputs{})
	require.NoError(t, err)

	assert.Equal(t, []string{"CHF"}, first.Terms())
	assert.Equal(t, []string{"UTI"}, second.Terms())
	assert.Equal(t, []string{"UTI"}, report.Processed())
}
