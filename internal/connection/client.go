package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/rickgao/socketmode/internal/envelope"
	"github.com/rickgao/socketmode/internal/metrics"
	"github.com/rickgao/socketmode/internal/router"
)

// Client is a socket-mode connection that survives reconnects.
type Client interface {
	// Connect acquires a URL and opens the socket. It returns once the first
	// handshake succeeds or fails; later reconnects happen in the background.
	// Calling it while already connecting or connected is a no-op.
	Connect(ctx context.Context) error

	// Close shuts the client down. Safe to call more than once.
	Close() error

	// Send writes payload as one text frame and waits for the write.
	// Strings and byte slices are sent verbatim, anything else as JSON.
	Send(ctx context.Context, payload any) error

	// Respond supplies the response payload for a pending acknowledgment.
	Respond(ctx context.Context, envelopeID string, payload any) error

	// OnMessage registers a listener for every inbound frame.
	OnMessage(l router.MessageListener)

	// OnRequest registers a listener for request envelopes.
	OnRequest(l router.RequestListener)

	// State returns the current connection state.
	State() State

	// Generation returns the generation of the newest connection.
	Generation() uint64

	// Done is closed once the client reaches StateClosed.
	Done() <-chan struct{}

	// Stats returns current statistics.
	Stats() Stats
}

// Acquirer returns a fresh single-use connection URL.
type Acquirer interface {
	AcquireURL(ctx context.Context) (string, error)
}

// AcquirerFunc adapts a function to Acquirer.
type AcquirerFunc func(ctx context.Context) (string, error)

func (f AcquirerFunc) AcquireURL(ctx context.Context) (string, error) {
	return f(ctx)
}

type connectRequest struct {
	ctx   context.Context
	reply chan error
}

// client implements the Client interface.
type client struct {
	cfg        Config
	logger     *slog.Logger
	acquirer   Acquirer
	dialer     *websocket.Dialer
	dispatcher *router.Dispatcher
	metrics    metrics.Recorder
	tracer     trace.Tracer
	jitter     func() float64

	onError  func(error)
	onGiveUp func(error)
	onState  func(from, to State)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Written only by the control loop.
	state      atomic.Int32
	gen        atomic.Uint64
	active     atomic.Pointer[handle]
	reconnects atomic.Int64
	backoff    *backoff

	connectReq chan connectRequest
	events     chan event
	draining   sync.WaitGroup

	loopOnce  sync.Once
	closeOnce sync.Once
}

// Option configures a Client.
type Option func(*client)

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(c *client) {
		c.metrics = rec
	}
}

// WithDialer sets a custom WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *client) {
		c.dialer = d
	}
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *client) {
		c.tracer = t
	}
}

// WithErrorHandler receives decode errors, listener errors and failed
// reconnect attempts. It runs on internal goroutines and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(c *client) {
		c.onError = fn
	}
}

// WithGiveUp is called with a *GiveUpError when MaxReconnectAttempts is
// exhausted. The client is closed afterwards.
func WithGiveUp(fn func(error)) Option {
	return func(c *client) {
		c.onGiveUp = fn
	}
}

// WithStateObserver is called synchronously on every state transition.
func WithStateObserver(fn func(from, to State)) Option {
	return func(c *client) {
		c.onState = fn
	}
}

// WithJitter overrides the backoff jitter source. fn returns values in [0, 1).
func WithJitter(fn func() float64) Option {
	return func(c *client) {
		c.jitter = fn
	}
}

// NewClient creates a socket-mode client. Nothing is dialed until Connect.
func NewClient(cfg Config, acquirer Acquirer, logger *slog.Logger, opts ...Option) Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		cfg:        cfg,
		logger:     logger.With("session", uuid.NewString()),
		acquirer:   acquirer,
		metrics:    metrics.Nop{},
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		connectReq: make(chan connectRequest),
		events:     make(chan event, 16),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	c.backoff = newBackoff(cfg.ReconnectMinDelay, cfg.ReconnectMaxDelay, c.jitter)

	dopts := []router.Option{
		router.WithLogger(c.logger),
		router.WithMetrics(c.metrics),
		router.WithErrorHandler(c.reportError),
	}
	if c.tracer != nil {
		dopts = append(dopts, router.WithTracer(c.tracer))
	}
	c.dispatcher = router.New(dopts...)

	c.metrics.SetState(StateIdle.String())
	return c
}

// Connect opens the first connection.
func (c *client) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.loopOnce.Do(func() { go c.run() })

	req := connectRequest{ctx: ctx, reply: make(chan error, 1)}
	select {
	case c.connectReq <- req:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Close shuts the client down and waits for the control loop to exit.
func (c *client) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Info("closing client")
		c.cancel()

		// Never connected: there is no control loop to finish the job.
		c.loopOnce.Do(func() {
			c.setState(StateClosing)
			c.setState(StateClosed)
			close(c.done)
		})
	})
	<-c.done
	return nil
}

// Send writes payload on the active connection.
func (c *client) Send(ctx context.Context, payload any) error {
	data, err := encodeOutbound(payload)
	if err != nil {
		return err
	}

	h := c.active.Load()
	if h == nil {
		return ErrNotConnected
	}

	done := make(chan error, 1)
	if err := h.send(data, done); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Respond supplies a response payload for envelopeID on the active connection.
func (c *client) Respond(ctx context.Context, envelopeID string, payload any) error {
	h := c.active.Load()
	if h == nil {
		return ErrNotConnected
	}
	return h.acks.respond(envelopeID, payload)
}

func (c *client) OnMessage(l router.MessageListener) {
	c.dispatcher.OnMessage(l)
}

func (c *client) OnRequest(l router.RequestListener) {
	c.dispatcher.OnRequest(l)
}

func (c *client) State() State {
	return State(c.state.Load())
}

func (c *client) Generation() uint64 {
	return c.gen.Load()
}

func (c *client) Done() <-chan struct{} {
	return c.done
}

func (c *client) Stats() Stats {
	s := Stats{
		State:      c.State(),
		Generation: c.Generation(),
		Reconnects: c.reconnects.Load(),
		Dispatch:   c.dispatcher.Stats(),
	}
	if h := c.active.Load(); h != nil {
		s.Queue = h.queue.stats()
	}
	return s
}

// handleFrame decodes one inbound frame, registers its ack, dispatches it
// and then releases the ack. Runs on the handle's read goroutine.
func (c *client) handleFrame(h *handle, data []byte, receivedAt time.Time) {
	msg := &router.Message{Raw: data, Generation: h.gen, ReceivedAt: receivedAt}
	r := responder{c: c, h: h}

	if !envelope.IsEnvelopeFrame(data) {
		c.metrics.IncEnvelope("text")
		c.dispatcher.Dispatch(c.ctx, r, msg)
		return
	}

	env, err := envelope.Decode(data)
	if err != nil {
		c.metrics.IncDecodeError()
		h.logger.Warn("dropping malformed frame", "error", err)
		c.reportError(err)
		return
	}
	msg.Envelope = env
	c.metrics.IncEnvelope(env.Type)

	switch env.Type {
	case envelope.TypePing:
		return
	case envelope.TypeHello:
		attrs := []any{"num_connections", env.NumConnections}
		if env.ConnectionInfo != nil {
			attrs = append(attrs, "app_id", env.ConnectionInfo.AppID)
		}
		if env.DebugInfo != nil {
			attrs = append(attrs,
				"host", env.DebugInfo.Host,
				"approximate_connection_time", env.DebugInfo.ApproximateConnectionTime,
			)
		}
		h.logger.Info("gateway hello", attrs...)
	case envelope.TypeDisconnect:
		h.logger.Info("gateway requested disconnect", "reason", env.Reason)
	default:
		h.logger.Debug("envelope received",
			"type", env.Type,
			"envelope_id", env.EnvelopeID,
			"retry_attempt", env.RetryAttempt,
		)
	}

	var pending *pendingAck
	if env.RequiresAck() {
		pending = h.acks.register(env)
	}

	c.dispatcher.Dispatch(c.ctx, r, msg)

	if pending != nil {
		h.acks.schedule(h.ctx, pending)
	}

	if env.Type == envelope.TypeDisconnect {
		h.signal(event{kind: eventDisconnect, cause: "disconnect", reason: env.Reason})
	}
}

func (c *client) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

// responder binds listener replies to the handle that delivered the frame.
type responder struct {
	c *client
	h *handle
}

func (r responder) Send(ctx context.Context, payload any) error {
	return r.c.Send(ctx, payload)
}

func (r responder) Respond(ctx context.Context, envelopeID string, payload any) error {
	return r.h.acks.respond(envelopeID, payload)
}

func encodeOutbound(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return append([]byte(nil), p...), nil
	case json.RawMessage:
		return append([]byte(nil), p...), nil
	case *envelope.Envelope:
		return envelope.Encode(p)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return data, nil
	}
}
