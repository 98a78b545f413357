package backoff

import (
	"math/rand"
	"testing"
	"time"
)

func TestDelayDoublesUntilCap(t *testing.T) {
	b := &Backoff{Initial: time.Second, Max: 60 * time.Second, Jitter: 0}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{6, 60 * time.Second},
		{20, 60 * time.Second},
	}

	for _, c := range cases {
		got := b.Delay(c.attempt)
		if got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayJitterStaysWithinBounds(t *testing.T) {
	b := &Backoff{
		Initial: time.Second,
		Max:     60 * time.Second,
		Jitter:  0.2,
		Rand:    rand.New(rand.NewSource(1)),
	}

	for attempt := 0; attempt < 10; attempt++ {
		base := b.Initial
		for i := 0; i < attempt; i++ {
			base *= 2
			if base >= b.Max {
				base = b.Max
				break
			}
		}
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)

		got := b.Delay(attempt)
		if got < lo || got > hi {
			t.Errorf("Delay(%d) = %v, want within [%v, %v]", attempt, got, lo, hi)
		}
	}
}

func TestDefault(t *testing.T) {
	d := Default()
	if d.Initial != time.Second || d.Max != 60*time.Second || d.Jitter != 0.2 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
}
