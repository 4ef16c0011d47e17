package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pgvector/pgvector-go"

	"github.com/sheria-ai/sheria/internal/model"
	"github.com/sheria-ai/sheria/internal/service/embedding"
)

// SimilaritySearcher is the pgvector query surface. Implemented by storage.DB.
type SimilaritySearcher interface {
	SimilaritySearch(ctx context.Context, embedding pgvector.Vector, k int) ([]model.Document, error)
	Ping(ctx context.Context) error
}

// PgvectorRetriever queries the pgvector index directly. It is the fallback
// backend when no Qdrant URL is configured; no hydration step is needed since
// the similarity query already returns full rows.
type PgvectorRetriever struct {
	db       SimilaritySearcher
	embedder embedding.Provider
	logger   *slog.Logger
}

func NewPgvectorRetriever(db SimilaritySearcher, embedder embedding.Provider, logger *slog.Logger) *PgvectorRetriever {
	return &PgvectorRetriever{db: db, embedder: embedder, logger: logger}
}

func (p *PgvectorRetriever) Search(ctx context.Context, query string, k int) ([]model.Document, error) {
	if k <= 0 {
		return nil, nil
	}

	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	docs, err := p.db.SimilaritySearch(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: pgvector search: %v", ErrUnavailable, err)
	}
	return docs, nil
}

func (p *PgvectorRetriever) Healthy(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
