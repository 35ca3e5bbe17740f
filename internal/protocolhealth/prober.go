package protocolhealth

import (
	"context"

	"bubbles/internal/unified"
)

// Prober checks whether one backend can currently take requests.
type Prober interface {
	Method() unified.Method
	Probe(ctx context.Context) error
}

type funcProber struct {
	method unified.Method
	fn     func(ctx context.Context) error
}

// NewProber adapts a plain function into a Prober.
func NewProber(method unified.Method, fn func(ctx context.Context) error) Prober {
	return &funcProber{method: method, fn: fn}
}

func (p *funcProber) Method() unified.Method { return p.method }

func (p *funcProber) Probe(ctx context.Context) error { return p.fn(ctx) }
