package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"chatty", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestProductionWritesJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bridge.log")
	logger, err := New(Config{Level: "info", OutputPaths: []string{out}})
	require.NoError(t, err)

	logger.ForLink("bridge", "link_01").Info("Peer ready", zap.Int("polls", 3))
	logger.Debug("Dropped at info level")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "Peer ready", entry["message"])
	assert.Equal(t, "bridge", entry["logger"])
	assert.Equal(t, "link_01", entry["link_id"])
	assert.Equal(t, float64(3), entry["polls"])
}

func TestFromLevelFallsBack(t *testing.T) {
	logger := FromLevel("chatty", false)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	dev := FromLevel("", true)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop().ForLink("mux", "mux_01").Info("ignored")
	})
}
