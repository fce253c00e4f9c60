package connection

import (
	"math/rand"
	"time"
)

// backoff produces reconnect delays: exponential from min to max with up to
// 25% jitter. Successive delays never decrease until reset.
type backoff struct {
	min    time.Duration
	max    time.Duration
	jitter func() float64 // Uniform in [0, 1)

	base     time.Duration
	last     time.Duration
	attempts int
}

func newBackoff(minDelay, maxDelay time.Duration, jitter func() float64) *backoff {
	if jitter == nil {
		jitter = rand.Float64
	}
	return &backoff{min: minDelay, max: maxDelay, jitter: jitter}
}

// next returns the delay before the next attempt.
func (b *backoff) next() time.Duration {
	if b.base == 0 {
		b.base = b.min
	}

	d := b.base + time.Duration(b.jitter()*float64(b.base)/4)
	if d > b.max {
		d = b.max
	}
	if d < b.last {
		d = b.last
	}
	b.last = d
	b.attempts++

	b.base *= 2
	if b.base > b.max {
		b.base = b.max
	}
	return d
}

// reset starts the sequence over at min.
func (b *backoff) reset() {
	b.base = 0
	b.last = 0
	b.attempts = 0
}
