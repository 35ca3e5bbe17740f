package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Kind selects how the delay between attempts grows.
type Kind string

const (
	KindExponential Kind = "exponential"
	KindFixed       Kind = "fixed"
)

func exponentialBackoff(initialInterval, maxInterval, maxElapsed time.Duration, multiplier float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.Multiplier = multiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = maxElapsed
	return exp
}

func (p Policy) backOff() backoff.BackOff {
	if p.Kind == KindFixed {
		return backoff.NewConstantBackOff(p.InitialInterval)
	}
	return exponentialBackoff(p.InitialInterval, p.MaxInterval, p.MaxElapsedTime, p.Multiplier)
}

// Delay reports the wait that follows the given (1-based) failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.Kind == KindFixed {
		return p.InitialInterval
	}
	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxInterval > 0 && d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(d)
}
