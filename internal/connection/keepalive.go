package connection

import (
	"context"
	"sync"
	"time"
)

// keepAlive tracks peer liveness for one handle. Any inbound frame or ping
// pushes the deadline out; it never sends pings itself.
type keepAlive struct {
	timeout time.Duration

	mu   sync.Mutex
	last time.Time
}

func newKeepAlive(timeout time.Duration) *keepAlive {
	return &keepAlive{timeout: timeout, last: time.Now()}
}

// touch records inbound activity.
func (k *keepAlive) touch() {
	k.mu.Lock()
	k.last = time.Now()
	k.mu.Unlock()
}

func (k *keepAlive) idle() time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()
	return time.Since(k.last)
}

// run blocks until ctx is done (returns nil) or no activity was seen for
// the full timeout (returns ErrStaleConnection).
func (k *keepAlive) run(ctx context.Context) error {
	timer := time.NewTimer(k.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			idle := k.idle()
			if idle >= k.timeout {
				return ErrStaleConnection
			}
			timer.Reset(k.timeout - idle)
		}
	}
}
