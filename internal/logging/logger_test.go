package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, cfg Config) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	cfg.Output = &buf
	Init(cfg)
	t.Cleanup(func() { Init(DefaultConfig()) })
	return &buf
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Timestamp)
	assert.False(t, cfg.Caller)
}

func TestInit_JSONOutput(t *testing.T) {
	buf := capture(t, Config{Level: "debug", Format: "json"})

	Info().Str("conn", "abc").Msg("client connected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "client connected", entry["message"])
	assert.Equal(t, "abc", entry["conn"])
}

func TestInit_LevelFilters(t *testing.T) {
	buf := capture(t, Config{Level: "warn"})

	Info().Msg("hidden")
	Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
		"":         zerolog.InfoLevel,
	}
	for input, want := range tests {
		assert.Equal(t, want, parseLevel(input), "input %q", input)
	}
}

func TestSlogHandler(t *testing.T) {
	buf := capture(t, Config{Level: "info"})

	logger := NewSlogLogger().With("service", "tcp-relay").WithGroup("event")
	logger.Warn("service failed", slog.Int("restarts", 3))
	logger.Debug("too quiet")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "service failed", entry["message"])
	assert.Equal(t, "tcp-relay", entry["service"])
	assert.EqualValues(t, 3, entry["event.restarts"])
}
