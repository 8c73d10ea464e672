package client

import "time"

// Backoff computes reconnect delays: exponential growth from Base by
// Factor, capped at Max. Attempts beyond MaxAttempts are refused.
type Backoff struct {
	Base        time.Duration
	Factor      float64
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff mirrors the usual frontend retry budget: 1s, 2s, 4s,
// 8s, 16s, then give up.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Factor:      2,
		Max:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before reconnect attempt n (0-based), and
// false once the attempt budget is exhausted.
func (b Backoff) Delay(attempt int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
		return 0, false
	}
	d := b.Base
	if d <= 0 {
		d = time.Second
	}
	f := b.Factor
	if f < 1 {
		f = 2
	}
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * f)
		if b.Max > 0 && d >= b.Max {
			return b.Max, true
		}
	}
	return d, true
}
