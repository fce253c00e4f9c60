package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaults(t *testing.T) {
	t.Run("zero values are filled", func(t *testing.T) {
		cfg := Config{ReconnectMinDelay: 2 * time.Minute}.withDefaults()
		d := DefaultConfig()

		assert.Equal(t, d.PingTimeout, cfg.PingTimeout)
		assert.Equal(t, d.WriteTimeout, cfg.WriteTimeout)
		assert.Equal(t, d.ResponseWindow, cfg.ResponseWindow)
		assert.Equal(t, d.StableAfter, cfg.StableAfter)
		assert.Equal(t, d.QueueSize, cfg.QueueSize)
		assert.Equal(t, 2*time.Minute, cfg.ReconnectMinDelay)
		assert.Equal(t, 2*time.Minute, cfg.ReconnectMaxDelay)
	})

	t.Run("auto reconnect is taken as given", func(t *testing.T) {
		assert.True(t, DefaultConfig().withDefaults().AutoReconnect)
		assert.False(t, Config{}.withDefaults().AutoReconnect)

		cfg := DefaultConfig()
		cfg.AutoReconnect = false
		assert.False(t, cfg.withDefaults().AutoReconnect)
	})
}
