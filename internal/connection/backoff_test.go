package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_NonDecreasingUpToMax(t *testing.T) {
	seeds := []func() float64{
		func() float64 { return 0 },
		func() float64 { return 0.999 },
		alternating(),
	}

	for _, jitter := range seeds {
		b := newBackoff(100*time.Millisecond, 2*time.Second, jitter)

		var prev time.Duration
		for i := 0; i < 20; i++ {
			d := b.next()
			assert.GreaterOrEqual(t, d, prev, "attempt %d", i)
			assert.LessOrEqual(t, d, 2*time.Second, "attempt %d", i)
			prev = d
		}
		assert.Equal(t, 2*time.Second, prev)
	}
}

func TestBackoff_Sequence(t *testing.T) {
	b := newBackoff(100*time.Millisecond, time.Second, func() float64 { return 0 })

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.next(), "attempt %d", i)
	}
	assert.Equal(t, len(want), b.attempts)
}

func TestBackoff_Jitter(t *testing.T) {
	b := newBackoff(100*time.Millisecond, time.Minute, func() float64 { return 0.5 })

	// 100ms base plus half of the 25% jitter range.
	assert.Equal(t, 112500*time.Microsecond, b.next())
}

func TestBackoff_Reset(t *testing.T) {
	b := newBackoff(50*time.Millisecond, time.Second, func() float64 { return 0 })

	b.next()
	b.next()
	b.next()
	assert.Equal(t, 400*time.Millisecond, b.next())

	b.reset()
	assert.Equal(t, 0, b.attempts)
	assert.Equal(t, 50*time.Millisecond, b.next())
}

// alternating returns high then low jitter so clamping to the previous
// delay is exercised.
func alternating() func() float64 {
	high := false
	return func() float64 {
		high = !high
		if high {
			return 0.99
		}
		return 0
	}
}
