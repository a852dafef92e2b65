package worker

import (
	"math"
	"time"
)

// BackoffStrategy computes the delay interposed before the attempt-th retry
// of a task. attempt is the task's retry count after incrementing, so the
// first retry calls Next(1).
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff delays Base*Factor^attempt with an optional cap.
// With the defaults (Base 1s, Factor 2) the delays run 2s, 4s, 8s, ...
type ExponentialBackoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(b.Base) * math.Pow(b.Factor, float64(attempt)))
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// FixedBackoff delays a constant amount regardless of attempt.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) Next(_ int) time.Duration { return b.Delay }

// NewExponentialBackoff builds the default retry backoff: factor^attempt
// seconds, uncapped. Factors below 1 fall back to 2.
func NewExponentialBackoff(factor float64) BackoffStrategy {
	if factor < 1.0 {
		factor = 2.0
	}
	return ExponentialBackoff{Base: time.Second, Factor: factor}
}
