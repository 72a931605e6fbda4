package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kessel/rolemapper/internal/probe"
)

func newTestLogger(buf *bytes.Buffer, cfg *ObservabilityConfig) *slog.Logger {
	return NewLoggerTo(cfg, buf)
}

func TestEventFilteringHandler(t *testing.T) {
	disabled := false

	t.Run("event on the record", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(&buf, &ObservabilityConfig{
			LogLevel:      "info",
			TokenIssuance: &EventLoggingConfig{LogLevel: "error"},
		})

		logger.Warn("filtered", "event", probe.TokenIssuanceEvent)
		logger.Error("kept", "event", probe.TokenIssuanceEvent)
		logger.Warn("other event", "event", probe.RoleAttributesMappingEvent)

		out := buf.String()
		assert.NotContains(t, out, "filtered")
		assert.Contains(t, out, "kept")
		assert.Contains(t, out, "other event")
	})

	t.Run("event bound with With", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(&buf, &ObservabilityConfig{
			RoleAttributesMapping: &EventLoggingConfig{Enabled: &disabled},
		})

		scoped := logger.With("event", probe.RoleAttributesMappingEvent, "mapper", "m")
		scoped.Error("Error processing role attributes for user session")
		logger.Info("unrelated")

		out := buf.String()
		assert.NotContains(t, out, "Error processing role attributes")
		assert.Contains(t, out, "unrelated")
	})

	t.Run("default level applies without overrides", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(&buf, &ObservabilityConfig{LogLevel: "warn"})

		logger.Info("quiet", "event", probe.TokenIssuanceEvent)
		logger.Warn("loud", "event", probe.TokenIssuanceEvent)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "loud")
	})
}

func TestLogLevels_Apply(t *testing.T) {
	var buf bytes.Buffer
	logger, levels := NewReloadableLogger(&ObservabilityConfig{LogLevel: "info"}, &buf)
	scoped := logger.With("event", probe.RoleAttributesMappingEvent)

	scoped.Debug("before reload")
	assert.Empty(t, buf.String())

	levels.Apply(&ObservabilityConfig{LogLevel: "debug"})
	assert.Equal(t, slog.LevelDebug, levels.Default())
	scoped.Debug("after reload")
	assert.Contains(t, buf.String(), "after reload")

	disabled := false
	levels.Apply(&ObservabilityConfig{
		LogLevel:              "debug",
		RoleAttributesMapping: &EventLoggingConfig{Enabled: &disabled},
	})
	buf.Reset()
	scoped.Error("mapping silenced")
	logger.Debug("others still debug", "event", probe.TokenIssuanceEvent)

	out := buf.String()
	assert.NotContains(t, out, "mapping silenced")
	assert.Contains(t, out, "others still debug")
}

func TestNewObserverWithLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	for _, typ := range []string{"logging", "noop", ""} {
		t.Run(typ, func(t *testing.T) {
			obs, err := NewObserverWithLogger(&ObservabilityConfig{Type: typ}, logger)
			require.NoError(t, err)
			assert.NotNil(t, obs)
		})
	}

	t.Run("composite", func(t *testing.T) {
		obs, err := NewObserverWithLogger(&ObservabilityConfig{
			Type:      "composite",
			Observers: []ObservabilityConfig{{Type: "logging"}, {Type: "noop"}},
		}, logger)
		require.NoError(t, err)
		assert.NotNil(t, obs)
	})

	t.Run("composite without children", func(t *testing.T) {
		_, err := NewObserverWithLogger(&ObservabilityConfig{Type: "composite"}, logger)
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewObserverWithLogger(&ObservabilityConfig{Type: "otel"}, logger)
		assert.Error(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		obs, err := NewObserverWithLogger(nil, logger)
		require.NoError(t, err)
		assert.NotNil(t, obs)
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}
