package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/socketmode/internal/envelope"
	"github.com/rickgao/socketmode/internal/metrics"
)

// pendingAck is one delivery waiting to be acknowledged.
type pendingAck struct {
	envelopeID     string
	acceptsPayload bool

	// Guarded by acknowledger.mu.
	flushed    bool
	hasPayload bool
	payload    any
	ready      chan struct{} // Closed when a response payload arrives
}

// acknowledger emits exactly one ack per delivery on its handle.
type acknowledger struct {
	window  time.Duration
	enqueue func(data []byte) error
	logger  *slog.Logger
	metrics metrics.Recorder

	mu      sync.Mutex
	pending map[string]*pendingAck
	wg      sync.WaitGroup
}

func newAcknowledger(window time.Duration, enqueue func([]byte) error, logger *slog.Logger, rec metrics.Recorder) *acknowledger {
	return &acknowledger{
		window:  window,
		enqueue: enqueue,
		logger:  logger,
		metrics: rec,
		pending: make(map[string]*pendingAck),
	}
}

// register marks env as awaiting acknowledgment. Call before dispatch so
// listeners can respond to it.
func (a *acknowledger) register(env *envelope.Envelope) *pendingAck {
	p := &pendingAck{
		envelopeID:     env.EnvelopeID,
		acceptsPayload: env.AcceptsResponsePayload,
		ready:          make(chan struct{}),
	}

	a.mu.Lock()
	// A redelivery of an id still in flight keeps the first entry for
	// responses; both deliveries are still acked.
	if _, exists := a.pending[p.envelopeID]; !exists {
		a.pending[p.envelopeID] = p
	}
	a.mu.Unlock()

	return p
}

// schedule sends the ack now, or after the response window when the
// envelope accepts a response payload.
func (a *acknowledger) schedule(ctx context.Context, p *pendingAck) {
	if !p.acceptsPayload {
		a.flush(p)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		timer := time.NewTimer(a.window)
		defer timer.Stop()

		select {
		case <-p.ready:
		case <-timer.C:
			a.logger.Debug("response window elapsed", "envelope_id", p.envelopeID)
		case <-ctx.Done():
			a.forget(p)
			return
		}
		a.flush(p)
	}()
}

// respond attaches payload to the pending ack of envelopeID.
func (a *acknowledger) respond(envelopeID string, payload any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[envelopeID]
	if !ok || p.flushed {
		return ErrUnknownEnvelope
	}
	if !p.acceptsPayload {
		return ErrResponseNotAccepted
	}
	if p.hasPayload {
		return ErrAlreadyResponded
	}

	p.payload = payload
	p.hasPayload = true
	close(p.ready)
	return nil
}

func (a *acknowledger) flush(p *pendingAck) {
	a.mu.Lock()
	if p.flushed {
		a.mu.Unlock()
		return
	}
	p.flushed = true
	if a.pending[p.envelopeID] == p {
		delete(a.pending, p.envelopeID)
	}
	payload := p.payload
	a.mu.Unlock()

	data, err := envelope.EncodeAck(p.envelopeID, payload)
	if err != nil {
		a.logger.Warn("invalid response payload, sending empty ack",
			"envelope_id", p.envelopeID,
			"error", err,
		)
		payload = nil
		data, _ = envelope.EncodeAck(p.envelopeID, nil)
	}

	if err := a.enqueue(data); err != nil {
		a.logger.Debug("ack dropped", "envelope_id", p.envelopeID, "error", err)
		return
	}
	a.metrics.IncAck(payload != nil)
}

func (a *acknowledger) forget(p *pendingAck) {
	a.mu.Lock()
	p.flushed = true
	if a.pending[p.envelopeID] == p {
		delete(a.pending, p.envelopeID)
	}
	a.mu.Unlock()
}

// wait blocks until every scheduled ack has been flushed or timeout passes.
func (a *acknowledger) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (a *acknowledger) pendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
