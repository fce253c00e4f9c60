package config

import (
	"time"

	"github.com/rickgao/socketmode/internal/api"
	"github.com/rickgao/socketmode/internal/connection"
)

// Default values for optional configuration fields.
const (
	DefaultInstanceID        = "socketmode"
	DefaultAPIURL            = api.DefaultBaseURL
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryBackoff      = 1 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultResponseWindow    = 2 * time.Second
	DefaultReconnectMinDelay = 1 * time.Second
	DefaultReconnectMaxDelay = 60 * time.Second
	DefaultStableAfter       = 10 * time.Second
	DefaultQueueSize         = 64
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.URL == "" {
		c.API.URL = DefaultAPIURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Connection defaults
	conn := &c.Connection
	if conn.PingTimeout == 0 {
		conn.PingTimeout = DefaultPingTimeout
	}
	if conn.WriteTimeout == 0 {
		conn.WriteTimeout = DefaultWriteTimeout
	}
	if conn.HandshakeTimeout == 0 {
		conn.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if conn.ResponseWindow == 0 {
		conn.ResponseWindow = DefaultResponseWindow
	}
	if conn.ReconnectMinDelay == 0 {
		conn.ReconnectMinDelay = DefaultReconnectMinDelay
	}
	if conn.ReconnectMaxDelay == 0 {
		conn.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if conn.StableAfter == 0 {
		conn.StableAfter = DefaultStableAfter
	}
	if conn.AutoReconnect == nil {
		on := true
		conn.AutoReconnect = &on
	}
	if conn.QueueSize == 0 {
		conn.QueueSize = DefaultQueueSize
	}
	if conn.ShutdownTimeout == 0 {
		conn.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// ClientConfig converts the connection section into a connection.Config.
func (c *Config) ClientConfig() connection.Config {
	conn := c.Connection
	autoReconnect := conn.AutoReconnect == nil || *conn.AutoReconnect
	return connection.Config{
		PingTimeout:          conn.PingTimeout,
		WriteTimeout:         conn.WriteTimeout,
		HandshakeTimeout:     conn.HandshakeTimeout,
		ResponseWindow:       conn.ResponseWindow,
		ReconnectMinDelay:    conn.ReconnectMinDelay,
		ReconnectMaxDelay:    conn.ReconnectMaxDelay,
		MaxReconnectAttempts: conn.MaxReconnectAttempts,
		StableAfter:          conn.StableAfter,
		AutoReconnect:        autoReconnect,
		DebugReconnects:      conn.DebugReconnects,
		QueueSize:            conn.QueueSize,
		ShutdownTimeout:      conn.ShutdownTimeout,
	}
}
