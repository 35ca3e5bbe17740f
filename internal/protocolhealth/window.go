package protocolhealth

import (
	"time"

	"bubbles/internal/unified"
)

const healthyRatio = 0.6

// window keeps the last N probe outcomes of one backend.
type window struct {
	samples     []bool
	next        int
	filled      int
	lastOK      bool
	latency     time.Duration
	lastErr     string
	lastChecked time.Time
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{samples: make([]bool, size)}
}

func (w *window) add(ok bool, latency time.Duration, err error, at time.Time) {
	w.samples[w.next] = ok
	w.next = (w.next + 1) % len(w.samples)
	if w.filled < len(w.samples) {
		w.filled++
	}
	w.lastOK = ok
	w.latency = latency
	w.lastChecked = at
	w.lastErr = ""
	if err != nil {
		w.lastErr = err.Error()
	}
}

func (w *window) score() float64 {
	if w.filled == 0 {
		return 0
	}
	ok := 0
	for i := 0; i < w.filled; i++ {
		if w.samples[i] {
			ok++
		}
	}
	return float64(ok) / float64(w.filled)
}

func (w *window) status() unified.HealthStatus {
	if w.filled == 0 || !w.lastOK {
		return unified.StatusUnhealthy
	}
	if w.score() >= healthyRatio {
		return unified.StatusHealthy
	}
	return unified.StatusDegraded
}

func (w *window) snapshot(method unified.Method) unified.BackendHealth {
	return unified.BackendHealth{
		Method:      method,
		Status:      w.status(),
		Score:       w.score(),
		LatencyMs:   w.latency.Milliseconds(),
		LastError:   w.lastErr,
		LastChecked: w.lastChecked,
	}
}
