package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheria-ai/sheria/internal/model"
)

func sampleResult(answer string) model.QueryResult {
	return model.QueryResult{
		Success:   true,
		Answer:    answer,
		ModelUsed: "openai/gpt-4o-mini",
		CitationMap: model.CitationMap{
			1: "Employment Act 2007, Section 35",
		},
		Metadata: model.QueryMetadata{Confidence: 0.84, CitationCount: 1, UseCitations: true},
	}
}

func TestFingerprintStability(t *testing.T) {
	models := []string{"openai/gpt-4o-mini", "ollama/llama3"}
	a := Fingerprint("what notice period applies", models)
	b := Fingerprint("what notice period applies", models)
	assert.Equal(t, a, b)
	assert.Contains(t, a, keyPrefix)
}

func TestFingerprintVariesByPromptAndChain(t *testing.T) {
	models := []string{"openai/gpt-4o-mini"}
	base := Fingerprint("prompt one", models)
	assert.NotEqual(t, base, Fingerprint("prompt two", models))
	assert.NotEqual(t, base, Fingerprint("prompt one", []string{"ollama/llama3"}))
}

func TestMemoryCacheHitAndMiss(t *testing.T) {
	c := NewMemoryCache(10, 0)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", sampleResult("cached answer"), time.Minute))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cached answer", got.Answer)
	assert.Equal(t, "Employment Act 2007, Section 35", got.CitationMap[1])
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(10, 0)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", sampleResult("a"), time.Minute))
	// Wind the clock past the TTL instead of sleeping.
	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is removed on read")
}

func TestMemoryCacheLRUEviction(t *testing.T) {
	c := NewMemoryCache(2, 0)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", sampleResult("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", sampleResult("b"), time.Minute))

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok, _ := c.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", sampleResult("c"), time.Minute))

	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCacheSweep(t *testing.T) {
	c := NewMemoryCache(10, 0)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", sampleResult("old"), time.Millisecond))
	require.NoError(t, c.Set(ctx, "fresh", sampleResult("fresh"), time.Hour))
	c.now = func() time.Time { return time.Now().Add(time.Minute) }

	c.sweep()

	assert.Equal(t, 1, c.Len())
	_, ok, _ := c.Get(ctx, "fresh")
	assert.True(t, ok)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", sampleResult("redis answer"), time.Hour))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "redis answer", got.Answer)
	assert.True(t, got.Metadata.UseCitations)
}

func TestRedisCacheTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", sampleResult("a"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer c.Close()

	require.NoError(t, mr.Set("k", "not json"))

	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
