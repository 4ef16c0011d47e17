package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrAllModelsFailed reports that every configured model was tried and
	// none produced an answer.
	ErrAllModelsFailed = errors.New("llm: all models failed")
	// ErrNoModels reports an empty model chain.
	ErrNoModels = errors.New("llm: no models configured")
	// ErrUnknownModel reports a model id the dispatcher does not track.
	ErrUnknownModel = errors.New("llm: unknown model")
)

// APIError is a non-2xx reply from a model backend.
type APIError struct {
	Model      string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: %s returned %d: %s", e.Model, e.StatusCode, e.Body)
}

// Class partitions invocation errors by how the dispatcher should react.
type Class int

const (
	// ClassTransient errors may succeed on retry against the same model.
	ClassTransient Class = iota
	// ClassPermanent errors will keep failing; move to the next model.
	ClassPermanent
	// ClassUnavailable errors mean the backend is unreachable; move on and
	// let the health loop probe it later.
	ClassUnavailable
)

// Classify buckets an invocation error. Timeouts, rate limits, and 5xx are
// transient; auth and request errors are permanent; connection failures are
// unavailable.
func Classify(err error) Class {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return ClassTransient
		default:
			return ClassPermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) {
		return ClassUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTransient
		}
		return ClassUnavailable
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassUnavailable
	}

	return ClassTransient
}
