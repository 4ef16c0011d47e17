package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sheria-ai/sheria/internal/model"
)

// probePrompt is the minimal completion used for reload and recovery probes.
const probePrompt = "Reply with the single word OK."

const retryBackoffBase = 200 * time.Millisecond

// Config tunes the dispatcher's retry and health behavior.
type Config struct {
	ModelTimeout             time.Duration
	MaxRetries               int // retries per model after the first attempt
	ErrorRateThreshold       float64
	LatencyThresholdMs       int64
	WindowSize               int
	ConsecutiveFailureCutoff int
	HealthCheckInterval      time.Duration
}

type trackedModel struct {
	client   Client
	priority int // 0 is the primary model
	health   health
}

// Dispatcher routes prompts through the model chain in priority order,
// retrying transient failures and skipping models marked FAILED.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	mu     sync.Mutex
	models []*trackedModel
}

// NewDispatcher builds a dispatcher over the given clients. Slice order is
// priority order; the first client is the primary model.
func NewDispatcher(clients []Client, cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	if len(clients) == 0 {
		return nil, ErrNoModels
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for i, c := range clients {
		d.models = append(d.models, &trackedModel{
			client:   c,
			priority: i,
			health:   newHealth(cfg.WindowSize, d.now()),
		})
	}
	return d, nil
}

// Dispatch sends the prompt to the highest-priority usable model, falling
// back down the chain on failure. It returns the response and the id of the
// model that produced it.
//
// Caller cancellation is passed through unwrapped and is never recorded as a
// model failure. When every model in the chain has failed, the primary model
// gets one more attempt before ErrAllModelsFailed is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, maxTokens int) (Response, string, error) {
	candidates := d.usable()
	if len(candidates) == 0 {
		// Entire chain is FAILED. Give the primary one more shot rather
		// than rejecting outright.
		d.logger.Warn("all models failed, retrying primary", "model", d.models[0].client.Name())
		candidates = d.models[:1]
	}

	var errs []string
	for _, tm := range candidates {
		resp, err := d.tryModel(ctx, tm, prompt, maxTokens)
		if err == nil {
			return resp, tm.client.Name(), nil
		}
		if ctx.Err() != nil {
			return Response{}, "", ctx.Err()
		}
		d.logger.Warn("model failed, falling back",
			"model", tm.client.Name(), "error", err)
		errs = append(errs, fmt.Sprintf("%s: %v", tm.client.Name(), err))
	}

	return Response{}, "", fmt.Errorf("%w: %s", ErrAllModelsFailed, strings.Join(errs, "; "))
}

// tryModel runs one model with per-attempt timeouts and exponential backoff
// between transient retries. Permanent and unavailable errors skip straight
// to the next model; an unreachable backend is marked FAILED on the spot and
// left to the recovery probe loop.
func (d *Dispatcher) tryModel(ctx context.Context, tm *trackedModel, prompt string, maxTokens int) (Response, error) {
	var lastErr error
	attempts := 1 + d.cfg.MaxRetries

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, retryBackoffBase<<(attempt-1)); err != nil {
				return Response{}, err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.ModelTimeout)
		start := d.now()
		resp, err := tm.client.Invoke(attemptCtx, prompt, maxTokens)
		cancel()

		if err == nil {
			d.recordSuccess(tm, d.now().Sub(start).Milliseconds())
			return resp, nil
		}
		if ctx.Err() != nil {
			// Caller gave up; not the model's fault.
			return Response{}, ctx.Err()
		}

		d.recordFailure(tm, err)
		lastErr = err
		if Classify(err) != ClassTransient {
			break
		}
	}
	return Response{}, lastErr
}

func (d *Dispatcher) usable() []*trackedModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*trackedModel, 0, len(d.models))
	for _, tm := range d.models {
		if tm.health.state != StateFailed {
			out = append(out, tm)
		}
	}
	return out
}

func (d *Dispatcher) recordSuccess(tm *trackedModel, latencyMs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := tm.health.state
	tm.health.recordSuccess(latencyMs, d.now(), d.cfg.ErrorRateThreshold, d.cfg.LatencyThresholdMs)
	if tm.health.state != prev {
		d.logger.Info("model state changed",
			"model", tm.client.Name(), "from", prev, "to", tm.health.state)
	}
}

func (d *Dispatcher) recordFailure(tm *trackedModel, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := tm.health.state
	tm.health.recordFailure(err, d.now(), d.cfg.ErrorRateThreshold, d.cfg.ConsecutiveFailureCutoff,
		Classify(err) == ClassUnavailable)
	if tm.health.state != prev {
		d.logger.Warn("model state changed",
			"model", tm.client.Name(), "from", prev, "to", tm.health.state, "error", err)
	}
}

// Status snapshots the health of every model in priority order.
func (d *Dispatcher) Status() []model.ModelStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.ModelStatus, 0, len(d.models))
	for _, tm := range d.models {
		p50, p95 := tm.health.latencyPercentiles()
		last := tm.health.lastChange
		out = append(out, model.ModelStatus{
			ID:             tm.client.Name(),
			Priority:       tm.priority,
			Status:         string(tm.health.state),
			ErrorRate:      tm.health.errorRate(),
			P50LatencyMs:   p50,
			P95LatencyMs:   p95,
			SuccessCount:   tm.health.successes,
			FailureCount:   tm.health.failures,
			LastError:      tm.health.lastErr,
			LastTransition: &last,
		})
	}
	return out
}

// Reload resets a model's health to LOADING, clears its window, and probes
// it once. The model comes back HEALTHY or FAILED depending on the probe.
func (d *Dispatcher) Reload(ctx context.Context, id string) (model.ModelStatus, error) {
	tm := d.find(id)
	if tm == nil {
		return model.ModelStatus{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}

	d.mu.Lock()
	tm.health.reset(d.now())
	d.mu.Unlock()
	d.logger.Info("reloading model", "model", id)

	d.probe(ctx, tm)

	for _, st := range d.Status() {
		if st.ID == id {
			return st, nil
		}
	}
	return model.ModelStatus{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
}

// Optimize is accepted for API compatibility; prompt-level tuning happens
// offline, so there is nothing to do at runtime.
func (d *Dispatcher) Optimize(ctx context.Context) error {
	d.logger.Info("optimize requested, no runtime action")
	return nil
}

// RunHealthLoop periodically probes FAILED models for recovery until the
// context is cancelled. Probes honor each model's exponential backoff.
func (d *Dispatcher) RunHealthLoop(ctx context.Context) {
	interval := d.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.probeFailed(ctx)
		}
	}
}

func (d *Dispatcher) probeFailed(ctx context.Context) {
	now := d.now()
	for _, tm := range d.models {
		d.mu.Lock()
		due := tm.health.state == StateFailed && !tm.health.nextProbe.After(now)
		d.mu.Unlock()
		if due {
			d.probe(ctx, tm)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (d *Dispatcher) probe(ctx context.Context, tm *trackedModel) {
	probeCtx, cancel := context.WithTimeout(ctx, d.cfg.ModelTimeout)
	defer cancel()

	start := d.now()
	_, err := tm.client.Invoke(probeCtx, probePrompt, 8)
	if err != nil {
		d.logger.Warn("model probe failed", "model", tm.client.Name(), "error", err)
		d.recordFailure(tm, err)
		d.mu.Lock()
		// A failed probe pins the model FAILED regardless of the
		// consecutive count.
		tm.health.setState(StateFailed, d.now())
		tm.health.scheduleProbe(d.now())
		d.mu.Unlock()
		return
	}
	d.logger.Info("model probe succeeded", "model", tm.client.Name())
	d.recordSuccess(tm, d.now().Sub(start).Milliseconds())
}

func (d *Dispatcher) find(id string) *trackedModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, tm := range d.models {
		if tm.client.Name() == id {
			return tm
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Cancelled reports whether the error is caller cancellation rather than a
// model failure.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
