package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sheria-ai/sheria/internal/llm"
	"github.com/sheria-ai/sheria/internal/model"
	"github.com/sheria-ai/sheria/internal/retrieval"
	"github.com/sheria-ai/sheria/internal/service/query"
)

// statusClientClosedRequest mirrors the nginx convention for caller aborts.
const statusClientClosedRequest = 499

// QueryService answers questions. Implemented by query.Service.
type QueryService interface {
	Answer(ctx context.Context, req model.QueryRequest) (model.QueryResult, error)
}

// ModelAdmin exposes the dispatcher's management surface.
type ModelAdmin interface {
	Status() []model.ModelStatus
	Reload(ctx context.Context, id string) (model.ModelStatus, error)
	Optimize(ctx context.Context) error
}

// Corpus reports document store health. Implemented by storage.DB.
type Corpus interface {
	Ping(ctx context.Context) error
	CountDocuments(ctx context.Context) (int64, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	querySvc            QueryService
	models              ModelAdmin
	retriever           retrieval.Retriever
	corpus              Corpus
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	QuerySvc            QueryService
	Models              ModelAdmin
	Retriever           retrieval.Retriever
	Corpus              Corpus
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		querySvc:            d.QuerySvc,
		models:              d.Models,
		retriever:           d.Retriever,
		corpus:              d.Corpus,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleQuery handles POST /v1/query.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req model.QueryRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.querySvc.Answer(r.Context(), req)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// writeQueryError maps pipeline error kinds onto HTTP statuses and error
// codes. The envelope never pretends a failed query succeeded.
func (h *Handlers) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrEmptyQuestion):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "question is required")
	case errors.Is(err, retrieval.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeRetrieverUnavailable, "document retrieval is unavailable")
	case errors.Is(err, llm.ErrAllModelsFailed):
		writeError(w, r, http.StatusBadGateway, model.ErrCodeAllModelsFailed, "all configured models failed")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, model.ErrCodeTimeout, "query timed out")
	case errors.Is(err, context.Canceled):
		writeError(w, r, statusClientClosedRequest, model.ErrCodeCancelled, "request cancelled")
	default:
		h.logger.Error("query failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "internal server error")
	}
}

// HandleModelsStatus handles GET /v1/models/status.
func (h *Handlers) HandleModelsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"models": h.models.Status(),
	})
}

// HandleModelReload handles POST /v1/models/{model_id}/reload.
func (h *Handlers) HandleModelReload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("model_id")
	st, err := h.models.Reload(r.Context(), id)
	if err != nil {
		if errors.Is(err, llm.ErrUnknownModel) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "unknown model: "+id)
			return
		}
		h.logger.Error("model reload failed", "model", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "reload failed")
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// HandleOptimize handles POST /v1/models/optimize.
func (h *Handlers) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	if err := h.models.Optimize(r.Context()); err != nil {
		h.logger.Error("optimize failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "optimize failed")
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
	Retriever     string `json:"retriever"`
	Documents     int64  `json:"documents,omitempty"`
	ModelsHealthy int    `json:"models_healthy"`
	ModelsTotal   int    `json:"models_total"`
}

// HandleHealth handles GET /health. Degraded dependencies turn the status
// into "degraded" with a 200; a down database returns 503.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Database:      "ok",
		Retriever:     "ok",
	}
	httpStatus := http.StatusOK

	if err := h.corpus.Ping(ctx); err != nil {
		resp.Database = "unreachable"
		resp.Status = "down"
		httpStatus = http.StatusServiceUnavailable
	} else if n, err := h.corpus.CountDocuments(ctx); err == nil {
		resp.Documents = n
	}

	if err := h.retriever.Healthy(ctx); err != nil {
		resp.Retriever = "unreachable"
		if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	for _, st := range h.models.Status() {
		resp.ModelsTotal++
		if st.Status == string(llm.StateHealthy) || st.Status == string(llm.StateLoading) {
			resp.ModelsHealthy++
		}
	}
	if resp.ModelsHealthy == 0 && resp.ModelsTotal > 0 && resp.Status == "ok" {
		resp.Status = "degraded"
	}

	writeJSON(w, r, httpStatus, resp)
}
