package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/socketmode/internal/envelope"
	"github.com/rickgao/socketmode/internal/router"
)

// Errors
var (
	ErrNotConnected        = errors.New("not connected")
	ErrStaleConnection     = errors.New("connection stale (no frames)")
	ErrClosed              = errors.New("client closed")
	ErrConnection          = errors.New("connection failed")
	ErrRetriesExhausted    = errors.New("reconnect attempts exhausted")
	ErrUnknownEnvelope     = errors.New("envelope not awaiting acknowledgment")
	ErrResponseNotAccepted = errors.New("envelope does not accept a response payload")
	ErrAlreadyResponded    = errors.New("response already supplied")
)

// DecodeError and ListenerError are re-exported for callers that only
// import this package.
type (
	DecodeError   = envelope.DecodeError
	ListenerError = router.ListenerError
)

// AcquisitionError reports a failure to obtain a connection URL.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire connection url: %v", e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func (e *AcquisitionError) Is(target error) bool { return target == ErrConnection }

// HandshakeError reports a failed socket handshake.
type HandshakeError struct {
	StatusCode int // HTTP status of the upgrade response, 0 if none
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("websocket handshake (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("websocket handshake: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

func (e *HandshakeError) Is(target error) bool { return target == ErrConnection }

// GiveUpError is passed to the give-up callback when a bounded reconnect
// budget runs out.
type GiveUpError struct {
	Attempts int
	Err      error // Last attempt's error
}

func (e *GiveUpError) Error() string {
	return fmt.Sprintf("giving up after %d reconnect attempts: %v", e.Attempts, e.Err)
}

func (e *GiveUpError) Unwrap() error { return e.Err }

func (e *GiveUpError) Is(target error) bool { return target == ErrRetriesExhausted }

// Config configures a Client. Start from DefaultConfig: zero durations and
// sizes are filled in by NewClient, but a zero AutoReconnect is taken as an
// explicit false, so a Config literal built from scratch never reconnects.
type Config struct {
	PingTimeout          time.Duration // Max time without any inbound frame before the connection is stale
	WriteTimeout         time.Duration // Write deadline for each outbound frame
	HandshakeTimeout     time.Duration // WebSocket upgrade timeout
	ResponseWindow       time.Duration // How long an ack waits for a listener's response payload
	ReconnectMinDelay    time.Duration // First backoff delay
	ReconnectMaxDelay    time.Duration // Backoff ceiling
	MaxReconnectAttempts int           // Consecutive failed attempts before giving up (0 = unbounded)
	StableAfter          time.Duration // Uptime after which a lost connection resets the backoff
	AutoReconnect        bool          // Reconnect after the connection is lost (on in DefaultConfig, never defaulted)
	DebugReconnects      bool          // Ask the gateway to rotate connections frequently
	QueueSize            int           // Initial outbound queue capacity
	ShutdownTimeout      time.Duration // Max wait for connection goroutines on teardown
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ResponseWindow:    2 * time.Second,
		ReconnectMinDelay: 1 * time.Second,
		ReconnectMaxDelay: 60 * time.Second,
		StableAfter:       10 * time.Second,
		AutoReconnect:     true,
		QueueSize:         64,
		ShutdownTimeout:   5 * time.Second,
	}
}

// withDefaults fills zero durations and sizes from DefaultConfig. Booleans
// are left as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.ResponseWindow <= 0 {
		c.ResponseWindow = d.ResponseWindow
	}
	if c.ReconnectMinDelay <= 0 {
		c.ReconnectMinDelay = d.ReconnectMinDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectMinDelay {
		c.ReconnectMaxDelay = max(d.ReconnectMaxDelay, c.ReconnectMinDelay)
	}
	if c.StableAfter <= 0 {
		c.StableAfter = d.StableAfter
	}
	if c.QueueSize < 1 {
		c.QueueSize = d.QueueSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// Stats contains runtime statistics.
type Stats struct {
	State      State
	Generation uint64
	Reconnects int64
	Queue      QueueStats
	Dispatch   router.Stats
}
