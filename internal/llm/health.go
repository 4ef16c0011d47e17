package llm

import (
	"sort"
	"time"
)

// State is a model's position in the health lifecycle.
type State string

const (
	StateLoading  State = "LOADING"
	StateHealthy  State = "HEALTHY"
	StateDegraded State = "DEGRADED"
	StateFailed   State = "FAILED"
)

// minWindowSamples gates error-rate transitions so a single early failure
// cannot degrade a model.
const minWindowSamples = 5

const (
	initialProbeBackoff = 30 * time.Second
	maxProbeBackoff     = 10 * time.Minute
)

type outcome struct {
	ok        bool
	latencyMs int64
}

// health tracks one model's trailing outcomes and the state derived from
// them. Callers hold the dispatcher lock.
type health struct {
	state       State
	window      []outcome // trailing ring, newest last
	windowSize  int
	consecutive int
	successes   int64
	failures    int64
	lastErr     string
	lastChange  time.Time

	probeBackoff time.Duration
	nextProbe    time.Time
}

func newHealth(windowSize int, now time.Time) health {
	return health{state: StateLoading, windowSize: windowSize, lastChange: now}
}

func (h *health) push(o outcome) {
	h.window = append(h.window, o)
	if len(h.window) > h.windowSize {
		h.window = h.window[1:]
	}
}

func (h *health) errorRate() float64 {
	if len(h.window) == 0 {
		return 0
	}
	fails := 0
	for _, o := range h.window {
		if !o.ok {
			fails++
		}
	}
	return float64(fails) / float64(len(h.window))
}

func (h *health) setState(s State, now time.Time) {
	if h.state == s {
		return
	}
	h.state = s
	h.lastChange = now
}

// recordSuccess feeds one successful call into the window and recomputes the
// state. A success clears the consecutive-failure streak and the probe
// backoff; the model recovers to HEALTHY unless the trailing error rate or
// latency still marks it DEGRADED.
func (h *health) recordSuccess(latencyMs int64, now time.Time, errorRateThreshold float64, latencyThresholdMs int64) {
	h.push(outcome{ok: true, latencyMs: latencyMs})
	h.successes++
	h.consecutive = 0
	h.probeBackoff = 0
	h.nextProbe = time.Time{}

	if len(h.window) >= minWindowSamples {
		if h.errorRate() > errorRateThreshold {
			h.setState(StateDegraded, now)
			return
		}
		if _, p95 := h.latencyPercentiles(); latencyThresholdMs > 0 && p95 > latencyThresholdMs {
			h.setState(StateDegraded, now)
			return
		}
	}
	h.setState(StateHealthy, now)
}

// recordFailure feeds one failed call into the window. An unreachable backend
// or reaching the consecutive-failure cutoff marks the model FAILED and
// schedules its next recovery probe with exponential backoff.
func (h *health) recordFailure(err error, now time.Time, errorRateThreshold float64, cutoff int, unavailable bool) {
	h.push(outcome{ok: false})
	h.failures++
	h.consecutive++
	if err != nil {
		h.lastErr = err.Error()
	}

	if unavailable || (cutoff > 0 && h.consecutive >= cutoff) {
		h.setState(StateFailed, now)
		h.scheduleProbe(now)
		return
	}

	if len(h.window) >= minWindowSamples && h.errorRate() > errorRateThreshold {
		h.setState(StateDegraded, now)
	}
}

// scheduleProbe sets the next recovery probe time, doubling the backoff on
// each consecutive FAILED episode up to the cap.
func (h *health) scheduleProbe(now time.Time) {
	if h.probeBackoff == 0 {
		h.probeBackoff = initialProbeBackoff
	} else if h.probeBackoff < maxProbeBackoff {
		h.probeBackoff *= 2
		if h.probeBackoff > maxProbeBackoff {
			h.probeBackoff = maxProbeBackoff
		}
	}
	h.nextProbe = now.Add(h.probeBackoff)
}

func (h *health) reset(now time.Time) {
	h.window = nil
	h.consecutive = 0
	h.successes = 0
	h.failures = 0
	h.lastErr = ""
	h.probeBackoff = 0
	h.nextProbe = time.Time{}
	h.setState(StateLoading, now)
}

// latencyPercentiles returns p50 and p95 over the successful calls in the
// window, zero when there are none.
func (h *health) latencyPercentiles() (p50, p95 int64) {
	var lats []int64
	for _, o := range h.window {
		if o.ok {
			lats = append(lats, o.latencyMs)
		}
	}
	if len(lats) == 0 {
		return 0, 0
	}
	sort.Slice(lats, func(i, j int) bool { return lats[i] < lats[j] })
	return lats[percentileIndex(len(lats), 50)], lats[percentileIndex(len(lats), 95)]
}

func percentileIndex(n, pct int) int {
	i := n*pct/100 - 1
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	return i
}
