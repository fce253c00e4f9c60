package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/socketmode/internal/auth"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.URL == "" {
		return errors.New("api.url is required")
	}
	if c.API.AppToken == "" && c.API.AppTokenPath == "" {
		return errors.New("api.app_token or api.app_token_path is required")
	}
	if c.API.AppToken != "" && !strings.HasPrefix(c.API.AppToken, auth.AppTokenPrefix) {
		return fmt.Errorf("api.app_token: %w", auth.ErrInvalidToken)
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	conn := c.Connection
	if conn.ReconnectMaxDelay < conn.ReconnectMinDelay {
		return fmt.Errorf("connection.reconnect_max_delay (%s) cannot be less than reconnect_min_delay (%s)",
			conn.ReconnectMaxDelay, conn.ReconnectMinDelay)
	}
	if conn.MaxReconnectAttempts < 0 {
		return errors.New("connection.max_reconnect_attempts must be >= 0")
	}
	if conn.QueueSize < 1 {
		return errors.New("connection.queue_size must be >= 1")
	}
	if conn.ResponseWindow < 0 {
		return errors.New("connection.response_window must be >= 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// Credentials resolves the app token from api.app_token or api.app_token_path.
func (c *Config) Credentials() (*auth.Credentials, error) {
	return auth.LoadCredentials(c.API.AppToken, c.API.AppTokenPath)
}

// SlogLevel returns the configured log level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	level, err := parseLevel(l.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", s)
}
