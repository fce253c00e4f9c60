package metrics

import (
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives events from the client. Implementations must be safe
// for concurrent use.
type Recorder interface {
	SetState(state string)
	SetGeneration(gen uint64)
	IncReconnect(reason string)
	IncEnvelope(envelopeType string)
	IncDecodeError()
	IncAck(withPayload bool)
	IncListenerError(kind string)
	ObserveDispatch(kind string, d time.Duration)
	IncSendError()
}

// States tracked by the state gauge. Kept in sync with connection.State.
var States = []string{"idle", "connecting", "connected", "reconnecting", "closing", "closed"}

// EnvelopeTypes are the type label values kept as-is. Anything else the
// peer sends is counted as "other".
var EnvelopeTypes = []string{"text", "hello", "disconnect", "ping", "events_api", "interactive", "slash_commands"}

// Config configures the Prometheus recorder.
type Config struct {
	// Namespace is the metrics namespace (default: "socketmode").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace: "socketmode",
		Subsystem: "client",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Prometheus records client events as Prometheus collectors.
type Prometheus struct {
	state          *prometheus.GaugeVec
	generation     prometheus.Gauge
	reconnects     *prometheus.CounterVec
	envelopes      *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	acks           *prometheus.CounterVec
	listenerErrors *prometheus.CounterVec
	dispatch       *prometheus.HistogramVec
	sendErrors     prometheus.Counter
}

// New registers the client collectors with cfg.Registry.
func New(cfg Config) *Prometheus {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}
	factory := promauto.With(cfg.Registry)

	return &Prometheus{
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "state",
			Help:        "Current connection state (1 for the active state)",
			ConstLabels: cfg.ConstLabels,
		}, []string{"state"}),

		generation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "generation",
			Help:        "Generation of the active connection",
			ConstLabels: cfg.ConstLabels,
		}),

		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "reconnects_total",
			Help:        "Reconnects started, by cause",
			ConstLabels: cfg.ConstLabels,
		}, []string{"reason"}),

		envelopes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "envelopes_received_total",
			Help:        "Inbound frames, by envelope type",
			ConstLabels: cfg.ConstLabels,
		}, []string{"type"}),

		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "decode_errors_total",
			Help:        "Inbound frames dropped because they could not be decoded",
			ConstLabels: cfg.ConstLabels,
		}),

		acks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "acks_sent_total",
			Help:        "Acknowledgments written, by whether they carried a payload",
			ConstLabels: cfg.ConstLabels,
		}, []string{"payload"}),

		listenerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "listener_errors_total",
			Help:        "Listener invocations that returned an error or panicked",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),

		dispatch: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Time spent running all listeners of one category for a frame",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"kind"}),

		sendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "send_errors_total",
			Help:        "Outbound frames that failed to write",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (p *Prometheus) SetState(state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		p.state.WithLabelValues(s).Set(v)
	}
}

func (p *Prometheus) SetGeneration(gen uint64) {
	p.generation.Set(float64(gen))
}

func (p *Prometheus) IncReconnect(reason string) {
	p.reconnects.WithLabelValues(reason).Inc()
}

func (p *Prometheus) IncEnvelope(envelopeType string) {
	if !slices.Contains(EnvelopeTypes, envelopeType) {
		envelopeType = "other"
	}
	p.envelopes.WithLabelValues(envelopeType).Inc()
}

func (p *Prometheus) IncDecodeError() {
	p.decodeErrors.Inc()
}

func (p *Prometheus) IncAck(withPayload bool) {
	label := "false"
	if withPayload {
		label = "true"
	}
	p.acks.WithLabelValues(label).Inc()
}

func (p *Prometheus) IncListenerError(kind string) {
	p.listenerErrors.WithLabelValues(kind).Inc()
}

func (p *Prometheus) ObserveDispatch(kind string, d time.Duration) {
	p.dispatch.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *Prometheus) IncSendError() {
	p.sendErrors.Inc()
}

// Handler returns the HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler serving g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards every event.
type Nop struct{}

func (Nop) SetState(string)                       {}
func (Nop) SetGeneration(uint64)                  {}
func (Nop) IncReconnect(string)                   {}
func (Nop) IncEnvelope(string)                    {}
func (Nop) IncDecodeError()                       {}
func (Nop) IncAck(bool)                           {}
func (Nop) IncListenerError(string)               {}
func (Nop) ObserveDispatch(string, time.Duration) {}
func (Nop) IncSendError()                         {}

var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = Nop{}
)
