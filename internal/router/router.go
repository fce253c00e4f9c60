package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rickgao/socketmode/internal/metrics"
)

// TracerName is the OpenTelemetry instrumentation name used for dispatch spans.
const TracerName = "github.com/rickgao/socketmode/internal/router"

// Dispatcher holds the listener lists and runs them for each frame.
type Dispatcher struct {
	logger  *slog.Logger
	metrics metrics.Recorder
	tracer  trace.Tracer
	onError func(error)

	// Listener lists are append-only; Dispatch copies the slice headers.
	listenersMu      sync.RWMutex
	messageListeners []MessageListener
	requestListeners []RequestListener

	wg sync.WaitGroup

	mu         sync.Mutex
	dispatched int64
	failures   int64
	inFlight   int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(d *Dispatcher) {
		d.metrics = rec
	}
}

// WithTracer overrides the tracer resolved from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

// WithErrorHandler receives every ListenerError after it is logged.
func WithErrorHandler(fn func(error)) Option {
	return func(d *Dispatcher) {
		d.onError = fn
	}
}

// New creates a Dispatcher with no listeners.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:  slog.Default(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.metrics == nil {
		d.metrics = metrics.Nop{}
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(TracerName)
	}
	return d
}

// OnMessage appends a message listener. Safe to call during dispatch; the
// listener sees frames dispatched after the call returns.
func (d *Dispatcher) OnMessage(l MessageListener) {
	d.listenersMu.Lock()
	d.messageListeners = append(d.messageListeners, l)
	d.listenersMu.Unlock()
}

// OnRequest appends a request listener.
func (d *Dispatcher) OnRequest(l RequestListener) {
	d.listenersMu.Lock()
	d.requestListeners = append(d.requestListeners, l)
	d.listenersMu.Unlock()
}

// Dispatch schedules msg for every listener and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, r Responder, msg *Message) {
	d.listenersMu.RLock()
	msgLs := d.messageListeners[:len(d.messageListeners):len(d.messageListeners)]
	reqLs := d.requestListeners[:len(d.requestListeners):len(d.requestListeners)]
	d.listenersMu.RUnlock()

	d.mu.Lock()
	d.dispatched++
	d.inFlight++
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			d.inFlight--
			d.mu.Unlock()
		}()
		d.run(ctx, r, msg, msgLs, reqLs)
	}()
}

// Wait blocks until every scheduled dispatch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() Stats {
	d.listenersMu.RLock()
	nMsg, nReq := len(d.messageListeners), len(d.requestListeners)
	d.listenersMu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		FramesDispatched: d.dispatched,
		MessageListeners: nMsg,
		RequestListeners: nReq,
		ListenerFailures: d.failures,
		InFlightDispatch: d.inFlight,
	}
}

func (d *Dispatcher) run(ctx context.Context, r Responder, msg *Message, msgLs []MessageListener, reqLs []RequestListener) {
	envType, envID := "message", ""
	if msg.Envelope != nil {
		envType, envID = msg.Envelope.Type, msg.Envelope.EnvelopeID
	}

	ctx, span := d.tracer.Start(ctx, "socketmode.dispatch "+envType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("socketmode.envelope_type", envType),
			attribute.String("socketmode.envelope_id", envID),
			attribute.Int64("socketmode.generation", int64(msg.Generation)),
		),
	)
	defer span.End()

	var failed int

	start := time.Now()
	for i, l := range msgLs {
		if err := d.invoke(KindMessage, i, envID, func() error { return l(ctx, r, msg) }); err != nil {
			failed++
			span.RecordError(err)
		}
	}
	d.metrics.ObserveDispatch(KindMessage, time.Since(start))

	if msg.Envelope != nil {
		if req, ok := msg.Envelope.Request(); ok {
			start = time.Now()
			for i, l := range reqLs {
				if err := d.invoke(KindRequest, i, envID, func() error { return l(ctx, r, req) }); err != nil {
					failed++
					span.RecordError(err)
				}
			}
			d.metrics.ObserveDispatch(KindRequest, time.Since(start))
		}
	}

	if failed > 0 {
		span.SetStatus(codes.Error, "listener failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Int("socketmode.listener_failures", failed))
}

// invoke runs one listener, converting errors and panics into a ListenerError.
func (d *Dispatcher) invoke(kind string, index int, envID string, fn func() error) (lerr *ListenerError) {
	defer func() {
		if p := recover(); p != nil {
			lerr = &ListenerError{Kind: kind, Index: index, EnvelopeID: envID, Panic: p}
		}
		if lerr != nil {
			d.report(lerr)
		}
	}()

	if err := fn(); err != nil {
		return &ListenerError{Kind: kind, Index: index, EnvelopeID: envID, Err: err}
	}
	return nil
}

func (d *Dispatcher) report(lerr *ListenerError) {
	d.mu.Lock()
	d.failures++
	d.mu.Unlock()

	d.metrics.IncListenerError(lerr.Kind)
	d.logger.Warn("listener failed",
		"kind", lerr.Kind,
		"index", lerr.Index,
		"envelope_id", lerr.EnvelopeID,
		"error", lerr,
	)
	if d.onError != nil {
		d.onError(lerr)
	}
}
