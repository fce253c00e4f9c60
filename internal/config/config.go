package config

import "time"

// Config is the root configuration for a socket-mode client instance.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance" toml:"instance"`
	API        APIConfig        `yaml:"api" toml:"api"`
	Connection ConnectionConfig `yaml:"connection" toml:"connection"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

// InstanceConfig identifies this client.
type InstanceConfig struct {
	ID string `yaml:"id" toml:"id"`
}

// APIConfig holds web API settings.
type APIConfig struct {
	URL          string        `yaml:"url" toml:"url"`
	AppToken     string        `yaml:"app_token" toml:"app_token"`           // xapp- token, usually ${SOCKETMODE_APP_TOKEN}
	AppTokenPath string        `yaml:"app_token_path" toml:"app_token_path"` // File holding the token when app_token is empty
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
	MaxRetries   int           `yaml:"max_retries" toml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" toml:"retry_backoff"`
}

// ConnectionConfig holds WebSocket session settings.
type ConnectionConfig struct {
	PingTimeout          time.Duration `yaml:"ping_timeout" toml:"ping_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout" toml:"handshake_timeout"`
	ResponseWindow       time.Duration `yaml:"response_window" toml:"response_window"`
	ReconnectMinDelay    time.Duration `yaml:"reconnect_min_delay" toml:"reconnect_min_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay" toml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
	StableAfter          time.Duration `yaml:"stable_after" toml:"stable_after"`
	AutoReconnect        *bool         `yaml:"auto_reconnect" toml:"auto_reconnect"` // nil means true
	DebugReconnects      bool          `yaml:"debug_reconnects" toml:"debug_reconnects"`
	QueueSize            int           `yaml:"queue_size" toml:"queue_size"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Port    int    `yaml:"port" toml:"port"`
	Path    string `yaml:"path" toml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text or json
}
