package types

import (
	"context"

	"github.com/xhad/readmit/internal/models"
)

// Core interfaces
type Retriever interface {
	Retrieve(ctx context.Context, term string) ([]models.Article, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, term string, articles []models.Article) (models.Summary, error)
}

type Normalizer interface {
	Process(articles []models.Article) []models.Article
}
