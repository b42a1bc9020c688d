package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := NewLogger(&Config{LogFormat: "json", LogLevel: "warn"})

	require.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	logger := NewLogger(&Config{LogLevel: "not-a-level"})

	require.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	require.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel("warn"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
}
