package notify

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffFactor = 2.0
	backoffJitter = 0.1
)

// backoff spaces webhook retries: initial * 2^n, jittered by ±10% and
// capped at max.
type backoff struct {
	initial time.Duration
	max     time.Duration
	// rand returns a value in [0, 1).
	rand func() float64
}

func newBackoff(initial, max time.Duration) backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return backoff{initial: initial, max: max, rand: rand.Float64}
}

// delay returns the wait after the given failed attempt (1-based).
func (b backoff) delay(attempt int) time.Duration {
	if attempt <= 1 {
		return b.initial
	}

	d := float64(b.initial) * math.Pow(backoffFactor, float64(attempt-1))
	d = math.Min(d, float64(b.max))
	d += d * backoffJitter * (2*b.rand() - 1)

	return time.Duration(math.Min(d, float64(b.max)))
}
