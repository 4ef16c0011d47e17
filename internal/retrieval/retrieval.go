// Package retrieval finds the documents most relevant to a question. The
// primary backend is Qdrant over gRPC with Postgres hydration; deployments
// without Qdrant fall back to querying the pgvector index directly.
package retrieval

import (
	"context"
	"errors"

	"github.com/sheria-ai/sheria/internal/model"
)

// ErrUnavailable marks retrieval failures caused by an unreachable backend.
// Callers surface these as retriever_unavailable rather than internal errors.
var ErrUnavailable = errors.New("retrieval: search backend unavailable")

// Retriever returns the top-k documents for a query, highest similarity
// first, deduplicated by uuid. Implementations must be safe for concurrent
// use.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]model.Document, error)

	// Healthy returns nil if the search backend is reachable.
	Healthy(ctx context.Context) error
}

// DocumentStore hydrates full documents for vector-search hits. Implemented
// by storage.DB.
type DocumentStore interface {
	DocumentsByUUIDs(ctx context.Context, uuids []string) ([]model.Document, error)
}
