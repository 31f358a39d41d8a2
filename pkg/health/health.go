// Package health provides Kubernetes-style liveness and readiness probes.
// Registered checks run periodically in the background; probe endpoints
// report the last observed state and never invoke checks inline. Thresholds
// keep a single transient failure from flipping the reported state.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Default thresholds applied to every check.
const (
	failureThreshold = 3
	successThreshold = 1
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// probe is the background state of one registered check.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	mu      sync.Mutex
	healthy bool
	lastErr error
	fails   int
	oks     int
}

// observe runs the check once and folds the result into the thresholded
// state. It is only ever called from the probe's own goroutine.
func (p *probe) observe(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.check(checkCtx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.oks = 0
		if p.fails++; p.fails >= failureThreshold {
			p.healthy = false
		}
		return
	}
	p.fails = 0
	if p.oks++; p.oks >= successThreshold {
		p.healthy = true
	}
}

func (p *probe) state() (healthy bool, lastErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy, p.lastErr
}

func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.observe(ctx)
		}
	}
}

// Health manages the liveness and readiness probes of a service.
type Health struct {
	mu        sync.Mutex
	ready     bool
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Health in the not-ready state; call SetReady(true) once
// initialization completes.
func New() *Health {
	return &Health{}
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	return &probe{
		name:    name,
		timeout: timeout,
		check:   check,
		// Healthy until the failure threshold says otherwise.
		healthy: true,
	}
}

// AddLivenessCheck registers a liveness check: is the process itself still
// functioning. Register all checks before calling Start.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a readiness check: can the service take
// traffic, e.g. database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

// Start launches one background goroutine per registered check, each
// re-probing at the given interval.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// Stop cancels the background probe goroutines. Safe to call repeatedly.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Graceful shutdown sets it to
// false so load balancers stop routing before the listener closes.
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady reports whether the manual gate is open and every readiness probe
// is currently healthy.
func (h *Health) IsReady() bool {
	h.mu.Lock()
	ready := h.ready
	probes := h.readiness
	h.mu.Unlock()

	if !ready {
		return false
	}
	for _, p := range probes {
		if ok, _ := p.state(); !ok {
			return false
		}
	}
	return true
}

// statusResponse is the JSON body of the probe endpoints.
type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while all liveness probes pass, else 503
// with per-check failure messages.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	probes := append([]*probe(nil), h.liveness...)
	h.mu.Unlock()

	writeStatus(w, failures(probes))
}

// ReadyEndpoint serves /readyz: 200 while the service is marked ready and
// all readiness probes pass.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	ready := h.ready
	probes := append([]*probe(nil), h.readiness...)
	h.mu.Unlock()

	fs := failures(probes)
	if !ready {
		fs["_readiness"] = "service is not ready"
	}
	writeStatus(w, fs)
}

func failures(probes []*probe) map[string]string {
	fs := make(map[string]string)
	for _, p := range probes {
		healthy, lastErr := p.state()
		if healthy {
			continue
		}
		if lastErr != nil {
			fs[p.name] = lastErr.Error()
		} else {
			fs[p.name] = "check is unhealthy"
		}
	}
	return fs
}

func writeStatus(w http.ResponseWriter, fs map[string]string) {
	resp := statusResponse{Status: "ok"}
	status := http.StatusOK
	if len(fs) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: fs}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
