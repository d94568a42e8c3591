package zap

import (
	"context"
	"errors"
	"testing"

	logpkg "github.com/Aniket1mg/cauldron/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)

	return Wrap(zap.New(core)), logs
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"production defaults", Config{Environment: EnvironmentProduction}, false},
		{"development defaults", Config{Environment: EnvironmentDevelopment}, false},
		{"explicit level", Config{Environment: EnvironmentProduction, Level: "warn"}, false},
		{"invalid level", Config{Environment: EnvironmentProduction, Level: "noisy"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestLoggerLog_Dispatch(t *testing.T) {
	t.Parallel()

	logger, logs := newObservedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelDebug, "d")
	logger.Log(ctx, logpkg.LevelInfo, "i")
	logger.Log(ctx, logpkg.LevelWarn, "w")
	logger.Log(ctx, logpkg.LevelError, "e", logpkg.Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "e", entries[3].Message)
}

func TestLoggerWith_AttachesFields(t *testing.T) {
	t.Parallel()

	logger, logs := newObservedLogger(zapcore.InfoLevel)

	child := logger.With(logpkg.String("component", "postgres"))
	child.Log(context.Background(), logpkg.LevelInfo, "hello")

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "postgres", fields["component"])
}

func TestLoggerEnabled(t *testing.T) {
	t.Parallel()

	logger, _ := newObservedLogger(zapcore.WarnLevel)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelWarn))
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))
}

func TestLoggerNilReceiver(t *testing.T) {
	t.Parallel()

	var logger *Logger

	require.NotPanics(t, func() {
		logger.Log(context.Background(), logpkg.LevelInfo, "dropped")
	})

	assert.False(t, logger.Enabled(logpkg.LevelError))
}

func TestLoggerSync_ContextCancelled(t *testing.T) {
	t.Parallel()

	logger, _ := newObservedLogger(zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, logger.Sync(ctx))
}

func TestLoggerLog_EscapesControlCharacters(t *testing.T) {
	t.Parallel()

	logger, logs := newObservedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelInfo, "user input: line1\nline2",
		logpkg.String("name", "evil\r\nINFO forged entry"),
		logpkg.Any("tabbed", "a\tb"),
		logpkg.Int("count", 3),
	)

	entries := logs.All()
	require.Len(t, entries, 1)

	assert.Equal(t, `user input: line1\nline2`, entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, `evil\r\nINFO forged entry`, fields["name"])
	assert.Equal(t, `a\tb`, fields["tabbed"])
	assert.Equal(t, int64(3), fields["count"], "non-string values pass through untouched")
}
