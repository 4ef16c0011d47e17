// Package cache stores completed query results keyed by a fingerprint of the
// normalized prompt and the active model chain.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/sheria-ai/sheria/internal/model"
)

// Cache is the response cache. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (model.QueryResult, bool, error)
	Set(ctx context.Context, key string, res model.QueryResult, ttl time.Duration) error
	Close() error
}

const keyPrefix = "sheria:query:"

// Fingerprint derives the cache key from the normalized prompt and the model
// chain. Including the chain means a config change to the models never serves
// stale answers produced by a different chain.
func Fingerprint(normalizedPrompt string, modelIDs []string) string {
	h := sha256.New()
	io.WriteString(h, normalizedPrompt)
	h.Write([]byte{0})
	io.WriteString(h, strings.Join(modelIDs, ","))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
