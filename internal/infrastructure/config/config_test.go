package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Device config
	assert.Equal(t, "/dev/dsp_debug", cfg.Devices.DSPDebug)
	assert.Equal(t, "/dev/kbuf-mgr-0", cfg.Devices.KbufManager)
	assert.Equal(t, "/dev/rpmsg_ctrl0", cfg.Devices.RpmsgCtrl)
	assert.Equal(t, "/sys/class/rpmsg", cfg.Devices.RpmsgClassDir)

	// Kbuf and msgbox config
	assert.Equal(t, uint32(16384), cfg.Kbuf.Length)
	assert.False(t, cfg.Kbuf.Cached)
	assert.Equal(t, "msgbox_demo", cfg.Msgbox.Name)
	assert.Equal(t, uint32(0xffffffff), cfg.Msgbox.Dst)

	// Transport config
	assert.Equal(t, 10*time.Millisecond, cfg.Transport.HandshakeBackoff)
	assert.Zero(t, cfg.Transport.HandshakeTimeout)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
}

// The struct tags and Default must agree.
func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"DSP_DEBUG_DEVICE":     "/tmp/dsp_debug",
		"KBUF_NAME":            "ring2",
		"KBUF_CACHED":          "true",
		"MSGBOX_NAME":          "msgbox_test",
		"MSGBOX_SRC":           "5",
		"HANDSHAKE_BACKOFF":    "25ms",
		"HANDSHAKE_TIMEOUT":    "30s",
		"BRIDGE_LINK":          "/run/vtty/dsp",
		"BRIDGE_POLL_INTERVAL": "1ms",
		"STATUS_ADDR":          ":9200",
		"STATUS_ENABLED":       "false",
		"MUX_DEVICE":           "/dev/ttyUSB0",
		"MUX_BAUD":             "921600",
		"LOG_LEVEL":            "debug",
		"LOG_DEV":              "true",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/dsp_debug", cfg.Devices.DSPDebug)
	assert.Equal(t, "ring2", cfg.Kbuf.Name)
	assert.True(t, cfg.Kbuf.Cached)
	assert.Equal(t, "msgbox_test", cfg.Msgbox.Name)
	assert.Equal(t, uint32(5), cfg.Msgbox.Src)
	assert.Equal(t, 25*time.Millisecond, cfg.Transport.HandshakeBackoff)
	assert.Equal(t, 30*time.Second, cfg.Transport.HandshakeTimeout)
	assert.Equal(t, "/run/vtty/dsp", cfg.Bridge.LinkPath)
	assert.Equal(t, time.Millisecond, cfg.Bridge.PollInterval)
	assert.Equal(t, ":9200", cfg.Server.Addr)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Mux.Device)
	assert.Equal(t, 921600, cfg.Mux.Baud)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	// Untouched values keep their defaults
	assert.Equal(t, "/dev/kbuf-mgr-0", cfg.Devices.KbufManager)
	assert.Equal(t, time.Second, cfg.Mux.ResyncWait)
	assert.Equal(t, "127.0.0.1:9111", cfg.Mux.StatusAddr)
}

func TestLoadInvalidValue(t *testing.T) {
	os.Setenv("HANDSHAKE_BACKOFF", "soon")
	defer os.Unsetenv("HANDSHAKE_BACKOFF")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 10*time.Millisecond, cfg.Transport.HandshakeBackoff)
}

func TestLoggingConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		dev       string
		wantLevel string
		wantDev   bool
	}{
		{
			name:      "default values",
			wantLevel: "info",
			wantDev:   false,
		},
		{
			name:      "debug level",
			level:     "debug",
			wantLevel: "debug",
			wantDev:   false,
		},
		{
			name:      "development mode",
			dev:       "true",
			wantLevel: "info",
			wantDev:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clean environment
			os.Unsetenv("LOG_LEVEL")
			os.Unsetenv("LOG_DEV")

			if tt.level != "" {
				require.NoError(t, os.Setenv("LOG_LEVEL", tt.level))
				defer os.Unsetenv("LOG_LEVEL")
			}
			if tt.dev != "" {
				require.NoError(t, os.Setenv("LOG_DEV", tt.dev))
				defer os.Unsetenv("LOG_DEV")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantLevel, cfg.Logging.Level)
			assert.Equal(t, tt.wantDev, cfg.Logging.Development)
		})
	}
}
