// Package health runs background liveness and readiness probes and serves
// their verdicts on Kubernetes-style /livez and /readyz endpoints.
//
// Probes are flap-damped: a check must fail failAfter consecutive times
// before its probe is reported down, and a single success brings it back.
// One slow database round trip therefore cannot bounce the pod out of the
// load balancer.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	failAfter = 3
	passAfter = 1
)

// probe pairs a CheckFunc with its damped state. observe is only ever called
// from the single poll goroutine; the state fields are also read by HTTP
// handlers, so every access goes through mu.
type probe struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	up      bool
	lastErr error
	fails   int
	passes  int
}

func newProbe(name string, timeout time.Duration, fn CheckFunc) *probe {
	// Probes start up so a service is not reported down before the first poll.
	return &probe{name: name, timeout: timeout, fn: fn, up: true}
}

func (p *probe) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.fn(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.passes = 0
		if p.fails++; p.fails >= failAfter {
			p.up = false
		}
		return
	}
	p.fails = 0
	if p.passes++; p.passes >= passAfter {
		p.up = true
	}
}

// state reports the damped verdict and the most recent check error.
func (p *probe) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.up, p.lastErr
}

// Health owns the registered probes and the manual readiness gate.
type Health struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a process-local probe: goroutine leaks, GC
// stalls, deadlocks. A down liveness probe tells the orchestrator to restart
// the process.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, fn))
}

// AddReadinessCheck registers a traffic-gating probe: database connectivity,
// dependent services. A down readiness probe only removes the pod from the
// load balancer.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, fn))
}

// Start launches one polling goroutine per registered probe. Register all
// probes before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.liveness)+len(h.readiness))
	probes = append(probes, h.liveness...)
	probes = append(probes, h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go poll(ctx, p, interval)
	}
}

func poll(ctx context.Context, p *probe, interval time.Duration) {
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

// Stop cancels the polling goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Call with true once startup
// finishes and with false at the beginning of graceful shutdown so the load
// balancer drains the pod before connections are closed.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe is up.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.Lock()
	probes := h.readiness
	h.mu.Unlock()

	for _, p := range probes {
		if up, _ := p.state(); !up {
			return false
		}
	}
	return true
}

// LiveEndpoint serves /livez: 200 while every liveness probe is up, 503 with
// a per-probe error map otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	probes := append([]*probe(nil), h.liveness...)
	h.mu.Unlock()

	serveVerdict(w, downProbes(probes))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness probe is up.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	probes := append([]*probe(nil), h.readiness...)
	h.mu.Unlock()

	down := downProbes(probes)
	if !h.ready.Load() {
		down["_readiness"] = "service is not ready"
	}
	serveVerdict(w, down)
}

// downProbes maps each down probe to its last error message. It reads stored
// state rather than re-running checks, so probe handlers stay cheap no matter
// how slow the underlying checks are.
func downProbes(probes []*probe) map[string]string {
	down := make(map[string]string)
	for _, p := range probes {
		up, err := p.state()
		if up {
			continue
		}
		msg := "check is unhealthy"
		if err != nil {
			msg = err.Error()
		}
		down[p.name] = msg
	}
	return down
}

func serveVerdict(w http.ResponseWriter, down map[string]string) {
	verdict, status := "ok", http.StatusOK
	if len(down) > 0 {
		verdict, status = "unhealthy", http.StatusServiceUnavailable
	}

	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(verdict) })
		if len(down) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				names := make([]string, 0, len(down))
				for name := range down {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(down[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
