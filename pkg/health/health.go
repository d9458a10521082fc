// Package health serves liveness and readiness probes.
//
// Every check runs in its own goroutine at a fixed interval and flips state
// only after a run of consecutive failures or successes, so a single slow
// ping does not take the service out of rotation. Non-critical checks are
// reported but only degrade the probe instead of failing it.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check belongs to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Probe statuses reported in the response body.
const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckOption configures a single check.
type CheckOption func(*check)

// Timeout bounds a single run of the check. The default is one second.
func Timeout(d time.Duration) CheckOption {
	return func(c *check) { c.timeout = d }
}

// Thresholds sets how many consecutive failures mark the check unhealthy
// and how many consecutive successes mark it healthy again. Defaults are 3
// and 1.
func Thresholds(failure, success int) CheckOption {
	return func(c *check) {
		if failure > 0 {
			c.failureThreshold = failure
		}
		if success > 0 {
			c.successThreshold = success
		}
	}
}

// NonCritical makes a failing check degrade the probe without failing it.
func NonCritical() CheckOption {
	return func(c *check) { c.critical = false }
}

// check holds the state of one registered check. run is only called from
// the check's own goroutine, so the counters need no locking; healthy and
// lastErr are read by handlers and are atomic.
type check struct {
	name             string
	fn               CheckFunc
	timeout          time.Duration
	failureThreshold int
	successThreshold int
	critical         bool

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails     int
	successes int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)

	if err != nil {
		c.successes = 0
		c.fails++
		if c.fails >= c.failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.successes++
	if c.successes >= c.successThreshold {
		c.healthy.Store(true)
	}
}

func (c *check) err() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Health holds the registered checks and the manual readiness gate.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks map[Kind][]*check
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{checks: make(map[Kind][]*check)}
}

// Register adds a check to the given probe. Checks start healthy.
func (h *Health) Register(kind Kind, name string, fn CheckFunc, opts ...CheckOption) {
	c := &check{
		name:             name,
		fn:               fn,
		timeout:          time.Second,
		failureThreshold: 3,
		successThreshold: 1,
		critical:         true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[kind] = append(h.checks[kind], c)
}

// Start runs every registered check immediately and then every interval
// until Stop or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	var all []*check
	for _, cs := range h.checks {
		all = append(all, cs...)
	}
	h.mu.Unlock()

	for _, c := range all {
		go loop(ctx, c, interval)
	}
}

func loop(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// Stop cancels the check goroutines. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady opens or closes the readiness gate.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and no critical readiness check
// is failing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return h.report(Readiness).Status != StatusUnhealthy
}

// Report is the JSON body of a probe response. Checks lists every check
// that is currently failing.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Health) report(kind Kind) Report {
	h.mu.RLock()
	checks := make([]*check, len(h.checks[kind]))
	copy(checks, h.checks[kind])
	h.mu.RUnlock()

	r := Report{Status: StatusOK}
	for _, c := range checks {
		if c.healthy.Load() {
			continue
		}
		if r.Checks == nil {
			r.Checks = make(map[string]string)
		}
		msg := "check is unhealthy"
		if err := c.err(); err != nil {
			msg = err.Error()
		}
		r.Checks[c.name] = msg

		switch {
		case c.critical:
			r.Status = StatusUnhealthy
		case r.Status == StatusOK:
			r.Status = StatusDegraded
		}
	}
	return r
}

// LiveEndpoint serves the liveness probe.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, h.report(Liveness))
}

// ReadyEndpoint serves the readiness probe. A closed gate is reported as
// the pseudo-check "_readiness".
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	r := h.report(Readiness)
	if !h.ready.Load() {
		if r.Checks == nil {
			r.Checks = make(map[string]string)
		}
		r.Checks["_readiness"] = "service is not ready"
		r.Status = StatusUnhealthy
	}
	write(w, r)
}

func write(w http.ResponseWriter, r Report) {
	w.Header().Set("Content-Type", "application/json")
	if r.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	// The status line is already out; an encode error means the client left.
	_ = json.NewEncoder(w).Encode(r)
}
