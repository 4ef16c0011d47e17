package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheria-ai/sheria/internal/model"
	"github.com/sheria-ai/sheria/internal/service/embedding"
)

func TestParseQdrantURL(t *testing.T) {
	cases := []struct {
		in      string
		host    string
		port    int
		useTLS  bool
		wantErr bool
	}{
		{in: "https://xyz.cloud.qdrant.io:6333", host: "xyz.cloud.qdrant.io", port: 6334, useTLS: true},
		{in: "http://localhost:6333", host: "localhost", port: 6334},
		{in: "http://localhost:6334", host: "localhost", port: 6334},
		{in: "http://localhost:7000", host: "localhost", port: 7000},
		{in: "https://qdrant.internal", host: "qdrant.internal", port: 6334, useTLS: true},
		{in: "not a url", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		host, port, useTLS, err := parseQdrantURL(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "url %q", tc.in)
			continue
		}
		require.NoError(t, err, "url %q", tc.in)
		assert.Equal(t, tc.host, host)
		assert.Equal(t, tc.port, port)
		assert.Equal(t, tc.useTLS, useTLS)
	}
}

type fakeSearcher struct {
	docs    []model.Document
	err     error
	pingErr error
	gotK    int
}

func (f *fakeSearcher) SimilaritySearch(_ context.Context, _ pgvector.Vector, k int) ([]model.Document, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func (f *fakeSearcher) Ping(context.Context) error { return f.pingErr }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPgvectorRetrieverSearch(t *testing.T) {
	fake := &fakeSearcher{docs: []model.Document{
		{UUID: "u1", Content: "notice rules", Similarity: 0.91},
	}}
	r := NewPgvectorRetriever(fake, embedding.NewNoopProvider(4), discardLogger())

	docs, err := r.Search(context.Background(), "notice period", 5)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "u1", docs[0].UUID)
	assert.Equal(t, 5, fake.gotK)
}

func TestPgvectorRetrieverUnavailable(t *testing.T) {
	fake := &fakeSearcher{err: errors.New("connection refused")}
	r := NewPgvectorRetriever(fake, embedding.NewNoopProvider(4), discardLogger())

	_, err := r.Search(context.Background(), "q", 5)

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPgvectorRetrieverZeroK(t *testing.T) {
	fake := &fakeSearcher{}
	r := NewPgvectorRetriever(fake, embedding.NewNoopProvider(4), discardLogger())

	docs, err := r.Search(context.Background(), "q", 0)

	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, fake.gotK)
}

func TestPgvectorRetrieverHealthy(t *testing.T) {
	fake := &fakeSearcher{}
	r := NewPgvectorRetriever(fake, embedding.NewNoopProvider(4), discardLogger())
	assert.NoError(t, r.Healthy(context.Background()))

	fake.pingErr = errors.New("down")
	assert.ErrorIs(t, r.Healthy(context.Background()), ErrUnavailable)
}
