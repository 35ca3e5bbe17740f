package protocolhealth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/internal/logger"
	"bubbles/internal/unified"
	apperrors "bubbles/pkg/errors"
	"bubbles/pkg/metrics"
)

var backends = []unified.Method{unified.MethodDirect, unified.MethodWebSocket, unified.MethodQueue}

// Monitor keeps a rolling health assessment of every backend and turns a
// request's hints into a primary/fallback decision.
type Monitor struct {
	probers []Prober
	cfg     config.HealthConfig
	logger  logger.Logger

	mu      sync.RWMutex
	windows map[unified.Method]*window
	checked time.Time

	startOnce    sync.Once
	startErr     error
	cancel       context.CancelFunc
	done         chan struct{}
	shutdownOnce sync.Once
}

var _ unified.HealthMonitor = (*Monitor)(nil)

func NewMonitor(cfg config.HealthConfig, log logger.Logger, probers ...Prober) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = constants.DefaultHealthInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = constants.DefaultProbeTimeout
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = constants.DefaultHealthWindow
	}

	windows := make(map[unified.Method]*window, len(backends))
	for _, m := range backends {
		windows[m] = newWindow(cfg.WindowSize)
	}

	return &Monitor{
		probers: probers,
		cfg:     cfg,
		logger:  log,
		windows: windows,
	}
}

// Start runs the first sweep synchronously, then keeps polling until
// Shutdown.
func (m *Monitor) Start(ctx context.Context) error {
	m.startOnce.Do(func() {
		if err := m.sweep(ctx); err != nil {
			m.startErr = err
			return
		}

		pollCtx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.done = make(chan struct{})
		go m.poll(pollCtx)
	})
	return m.startErr
}

func (m *Monitor) poll(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sweep(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warnw("Protocol health sweep interrupted", "error", err)
			}
		}
	}
}

// sweep probes every backend concurrently. Probe failures only degrade the
// backend; the returned error is limited to ctx ending.
func (m *Monitor) sweep(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, p := range m.probers {
		g.Go(func() error {
			m.probe(gCtx, p)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.checked = time.Now()
	m.mu.Unlock()
	return nil
}

func (m *Monitor) probe(ctx context.Context, p Prober) {
	method := p.Method()
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.RecoverPanic(r)
			}
		}()
		return p.Probe(probeCtx)
	}()
	latency := time.Since(start)
	metrics.ObserveProbe(string(method), latency)

	m.mu.Lock()
	w, ok := m.windows[method]
	if !ok {
		w = newWindow(m.cfg.WindowSize)
		m.windows[method] = w
	}
	before := w.status()
	w.add(err == nil, latency, err, time.Now())
	after := w.status()
	m.mu.Unlock()

	metrics.SetProtocolHealth(string(method), statusCode(after))
	if before != after {
		m.logger.Infow("Protocol health changed",
			"backend", method,
			"from", before,
			"to", after,
			"error", err,
		)
	}
}

func statusCode(s unified.HealthStatus) int {
	switch s {
	case unified.StatusHealthy:
		return 2
	case unified.StatusDegraded:
		return 1
	default:
		return 0
	}
}

// GetSystemHealth returns a copy of the current assessment.
func (m *Monitor) GetSystemHealth() unified.SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := unified.SystemHealth{
		Backends:  make(map[unified.Method]unified.BackendHealth, len(m.windows)),
		CheckedAt: m.checked,
	}
	for method, w := range m.windows {
		snap.Backends[method] = w.snapshot(method)
	}
	return snap
}

// GetOptimalProtocolPath picks the primary and fallback backend for req from
// the current snapshot. An unhealthy backend is never primary while a
// healthy one exists.
func (m *Monitor) GetOptimalProtocolPath(req *unified.NormalizedRequest) unified.PathDecision {
	return decide(req, m.GetSystemHealth())
}

func decide(req *unified.NormalizedRequest, snap unified.SystemHealth) unified.PathDecision {
	ws := snap.Backends[unified.MethodWebSocket]
	q := snap.Backends[unified.MethodQueue]
	direct := snap.Backends[unified.MethodDirect]
	wsOK, qOK, directOK := ws.Healthy(), q.Healthy(), direct.Healthy()

	healthy := func(m unified.Method) bool {
		switch m {
		case unified.MethodWebSocket:
			return wsOK
		case unified.MethodQueue:
			return qOK
		default:
			return directOK
		}
	}

	// The counterpart of websocket is queue and vice versa; direct stands in
	// when the counterpart is down.
	fallbackFor := func(primary unified.Method) (unified.Method, string) {
		other := unified.MethodQueue
		if primary == unified.MethodQueue {
			other = unified.MethodWebSocket
		}
		if primary == unified.MethodDirect {
			other = preferred(req)
		}
		if healthy(other) || primary == unified.MethodDirect {
			return other, ""
		}
		if directOK {
			return unified.MethodDirect, fmt.Sprintf(", %s unhealthy so direct is fallback", other)
		}
		return other, fmt.Sprintf(", %s unhealthy", other)
	}

	decision := func(primary unified.Method, reason string) unified.PathDecision {
		fb, note := fallbackFor(primary)
		return unified.PathDecision{Primary: primary, Fallback: fb, Reason: reason + note}
	}

	switch {
	case req.RequiresRealTime && wsOK:
		return decision(unified.MethodWebSocket, "websocket preferred: requiresRealTime=true")
	case req.RequiresReliability && qOK:
		return decision(unified.MethodQueue, "queue preferred: requiresReliability=true")
	case wsOK && qOK:
		if q.Score > ws.Score {
			return decision(unified.MethodQueue, fmt.Sprintf("queue healthier: score %.2f > websocket %.2f", q.Score, ws.Score))
		}
		return decision(unified.MethodWebSocket, fmt.Sprintf("websocket healthier or tied: score %.2f >= queue %.2f", ws.Score, q.Score))
	case wsOK:
		reason := "websocket is the only healthy transport"
		if req.RequiresReliability {
			reason += " (requiresReliability=true, but queue unhealthy)"
		}
		return decision(unified.MethodWebSocket, reason)
	case qOK:
		reason := "queue is the only healthy transport"
		if req.RequiresRealTime {
			reason += " (requiresRealTime=true, but websocket unhealthy)"
		}
		return decision(unified.MethodQueue, reason)
	case directOK:
		return decision(unified.MethodDirect, "websocket and queue unhealthy: executing directly")
	default:
		p := preferred(req)
		fb := unified.MethodQueue
		if p == unified.MethodQueue {
			fb = unified.MethodWebSocket
		}
		return unified.PathDecision{
			Primary:  p,
			Fallback: fb,
			Reason:   "no healthy backend: websocket, queue and direct unhealthy",
		}
	}
}

// preferred is the transport the request's hints ask for.
func preferred(req *unified.NormalizedRequest) unified.Method {
	if !req.RequiresRealTime && req.RequiresReliability {
		return unified.MethodQueue
	}
	return unified.MethodWebSocket
}

// Shutdown stops polling. It is safe to call more than once.
func (m *Monitor) Shutdown() {
	m.shutdownOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
	})
}
