package model

import "time"

// Error codes returned in the API error envelope. These mirror the pipeline
// error kinds so callers can branch without parsing messages.
const (
	ErrCodeBadRequest           = "bad_request"
	ErrCodeRetrieverUnavailable = "retriever_unavailable"
	ErrCodeAllModelsFailed      = "all_models_failed"
	ErrCodeTimeout              = "timeout"
	ErrCodeCancelled            = "cancelled"
	ErrCodeNotFound             = "not_found"
	ErrCodeInternal             = "internal_error"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta is attached to every response for request correlation.
type ResponseMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ModelStatus is the read-only health snapshot of a single model entry.
type ModelStatus struct {
	ID             string     `json:"id"`
	Priority       int        `json:"priority"`
	Status         string     `json:"status"`
	ErrorRate      float64    `json:"error_rate"`
	P50LatencyMs   int64      `json:"p50_latency_ms"`
	P95LatencyMs   int64      `json:"p95_latency_ms"`
	SuccessCount   int64      `json:"success_count"`
	FailureCount   int64      `json:"failure_count"`
	LastError      string     `json:"last_error,omitempty"`
	LastTransition *time.Time `json:"last_transition,omitempty"`
}
