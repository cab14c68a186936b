package socket

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := Backoff{Min: time.Second, Max: 5 * time.Second, Factor: 2}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for attempt, w := range want {
		if got := b.Duration(attempt, nil); got != w {
			t.Errorf("attempt %d: Expected %v, got %v instead", attempt, w, got)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := Backoff{Min: time.Second, Max: time.Hour, Factor: 2, Jitter: 0.5}
	rng := rand.New(rand.NewSource(7))

	for attempt := 0; attempt < 8; attempt++ {
		base := time.Second << attempt
		for i := 0; i < 100; i++ {
			d := b.Duration(attempt, rng)
			if d < base/2 || d > base+base/2 {
				t.Fatalf("attempt %d: %v outside [%v, %v]", attempt, d, base/2, base+base/2)
			}
		}
	}
}

func TestBackoffJitterNeverExceedsMax(t *testing.T) {
	b := Backoff{Min: time.Second, Max: 3 * time.Second, Factor: 2, Jitter: 1}
	rng := rand.New(rand.NewSource(1))
	for attempt := 0; attempt < 100; attempt++ {
		if d := b.Duration(attempt, rng); d > b.Max {
			t.Fatalf("attempt %d: %v exceeds max", attempt, d)
		}
	}
}

func TestBackoffNonDecreasingOnAverage(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: 0.5}
	rng := rand.New(rand.NewSource(3))

	var prev float64
	for attempt := 0; attempt < 10; attempt++ {
		var sum float64
		for i := 0; i < 500; i++ {
			sum += float64(b.Duration(attempt, rng))
		}
		avg := sum / 500
		if avg < prev {
			t.Fatalf("attempt %d: mean %v below previous %v", attempt, time.Duration(avg), time.Duration(prev))
		}
		prev = avg
	}
}

func TestBackoffEdgeCases(t *testing.T) {
	if d := (Backoff{}).Duration(3, nil); d != 0 {
		t.Errorf("zero Min must yield no delay, got %v", d)
	}
	b := Backoff{Min: time.Second}
	if d := b.Duration(1, nil); d != 2*time.Second {
		t.Errorf("default factor should be 2, got %v", d)
	}
	if d := b.Duration(10000, nil); d <= 0 {
		t.Errorf("overflow must saturate, got %v", d)
	}
}
