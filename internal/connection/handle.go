package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event kinds reported by a handle to the control loop.
const (
	eventFailure = iota
	eventDisconnect
)

// event is sent from a handle's goroutines to the control loop. Events
// from a superseded generation are ignored.
type event struct {
	gen    uint64
	kind   int
	cause  string // Metrics label
	reason string // Disconnect reason
	err    error
}

// handle is one live socket and everything scoped to its generation.
type handle struct {
	c      *client
	gen    uint64
	conn   *websocket.Conn
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	queue     *outboundQueue
	acks      *acknowledger
	keepalive *keepAlive

	connectedAt time.Time
	wg          sync.WaitGroup
	writerDone  chan struct{}
	closeOnce   sync.Once
}

func (c *client) newHandle(conn *websocket.Conn, gen uint64) *handle {
	ctx, cancel := context.WithCancel(c.ctx)
	h := &handle{
		c:          c,
		gen:        gen,
		conn:       conn,
		logger:     c.logger.With("gen", gen),
		ctx:        ctx,
		cancel:     cancel,
		queue:      newOutboundQueue(c.cfg.QueueSize),
		keepalive:  newKeepAlive(c.cfg.PingTimeout),
		writerDone: make(chan struct{}),
	}
	h.acks = newAcknowledger(c.cfg.ResponseWindow, h.enqueueAck, h.logger, c.metrics)

	// Peer pings count as activity; answer them like the default handler does.
	conn.SetPingHandler(func(data string) error {
		h.keepalive.touch()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		h.keepalive.touch()
		return nil
	})

	return h
}

func (h *handle) start() {
	h.connectedAt = time.Now()
	h.keepalive.touch()

	h.wg.Add(3)
	go h.readLoop()
	go h.writeLoop()
	go h.keepaliveLoop()
}

// current reports whether h is still the newest generation.
func (h *handle) current() bool {
	return h.c.gen.Load() == h.gen
}

func (h *handle) signal(ev event) {
	ev.gen = h.gen
	select {
	case h.c.events <- ev:
	case <-h.ctx.Done():
	}
}

// send queues a caller frame. Superseded and closed handles refuse it.
func (h *handle) send(data []byte, done chan error) error {
	if !h.current() {
		return ErrNotConnected
	}
	if !h.queue.push(&outboundFrame{data: data, kind: "send", done: done}) {
		return ErrNotConnected
	}
	return nil
}

// enqueueAck queues an ack. Acks stay bound to the handle that delivered
// the envelope, even while a newer handle is being installed.
func (h *handle) enqueueAck(data []byte) error {
	if !h.queue.push(&outboundFrame{data: data, kind: "ack"}) {
		return ErrNotConnected
	}
	return nil
}

func (h *handle) readLoop() {
	defer h.wg.Done()

	for {
		_, data, err := h.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after teardown or once superseded.
			if h.ctx.Err() != nil || !h.current() {
				return
			}
			cause := "read_error"
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cause = "closed_by_peer"
			}
			h.signal(event{kind: eventFailure, cause: cause, err: err})
			return
		}

		if !h.current() {
			h.logger.Debug("dropping frame from superseded connection", "bytes", len(data))
			return
		}

		h.keepalive.touch()
		h.c.handleFrame(h, data, receivedAt)
	}
}

func (h *handle) writeLoop() {
	defer h.wg.Done()
	defer close(h.writerDone)

	var writeErr error
	for {
		f, ok := h.queue.pop()
		if !ok {
			return
		}

		if h.ctx.Err() != nil || writeErr != nil {
			f.finish(ErrNotConnected)
			continue
		}

		h.conn.SetWriteDeadline(time.Now().Add(h.c.cfg.WriteTimeout))
		if err := h.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
			h.c.metrics.IncSendError()
			h.logger.Warn("write failed", "kind", f.kind, "error", err)
			f.finish(fmt.Errorf("write frame: %w", err))

			writeErr = err
			if h.current() {
				h.signal(event{kind: eventFailure, cause: "write_error", err: err})
			}
			continue
		}
		f.finish(nil)
	}
}

func (h *handle) keepaliveLoop() {
	defer h.wg.Done()

	if err := h.keepalive.run(h.ctx); err != nil {
		if !h.current() {
			return
		}
		h.logger.Warn("no frames received, connection stale",
			"timeout", h.c.cfg.PingTimeout,
		)
		h.signal(event{kind: eventFailure, cause: "stale", err: err})
	}
}

// close tears the handle down. Queued frames fail with ErrNotConnected.
// A non-zero code sends a close frame first.
func (h *handle) close(code int) {
	h.closeOnce.Do(func() {
		h.queue.close()
		h.cancel()

		if code != 0 {
			h.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(code, ""),
				time.Now().Add(time.Second),
			)
		}
		h.conn.Close()
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(h.c.cfg.ShutdownTimeout):
		h.logger.Warn("connection teardown timed out, abandoning goroutines")
	}
}

// drain retires a superseded handle: pending acks and queued frames are
// flushed before the socket is closed.
func (h *handle) drain() {
	timeout := h.c.cfg.ResponseWindow + h.c.cfg.WriteTimeout
	if !h.acks.wait(timeout) {
		h.logger.Warn("acks still pending on retired connection", "pending", h.acks.pendingCount())
	}

	h.queue.close()
	select {
	case <-h.writerDone:
	case <-time.After(h.c.cfg.WriteTimeout):
		h.logger.Warn("retired connection did not flush in time", "pending", h.queue.len())
	}

	h.close(websocket.CloseNormalClosure)
	h.logger.Debug("retired connection closed")
}
