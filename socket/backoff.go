package socket

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes reconnection delays: Min·Factor^attempt, scaled by a
// random factor in [1-Jitter, 1+Jitter] and capped at Max.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// Duration returns the delay before reconnection attempt number attempt+1.
// A nil rng disables jitter.
func (b Backoff) Duration(attempt int, rng *rand.Rand) time.Duration {
	if b.Min <= 0 {
		return 0
	}
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.Min) * math.Pow(factor, float64(attempt))
	if b.Jitter > 0 && rng != nil {
		j := math.Min(b.Jitter, 1)
		delay *= 1 - j + 2*j*rng.Float64()
	}
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if delay > math.MaxInt64 || math.IsInf(delay, 0) || math.IsNaN(delay) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
