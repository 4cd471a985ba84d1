package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	assert.Equal(t, zapcore.DebugLevel, levelFromEnv())

	t.Setenv("LOG_LEVEL", "nonsense")
	assert.Equal(t, zapcore.InfoLevel, levelFromEnv())
}

func TestEncodingFromEnv(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	assert.Equal(t, "json", encodingFromEnv())

	t.Setenv("LOG_FORMAT", "Console")
	assert.Equal(t, "console", encodingFromEnv())
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")

	logger, err := NewLogger("oee-monitor")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
