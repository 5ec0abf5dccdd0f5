package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"fatal": zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	got, ok := ParseLogLevel("  WARN ")
	require.True(t, ok)
	require.Equal(t, zapcore.WarnLevel, got)

	_, ok = ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestFromContextFallsBackToGlobal verifies that a bare context yields the global logger.
func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestToContextRoundTrip verifies that a logger stored in a context is returned unchanged.
func TestToContextRoundTrip(t *testing.T) {
	t.Parallel()

	l := New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), l)

	require.Same(t, l, FromContext(ctx))
}

// TestWithNameScopes verifies that nested names produce dot-separated logger scopes.
func TestWithNameScopes(t *testing.T) {
	t.Parallel()

	ctx := WithName(context.Background(), "supervisor")
	require.Equal(t, "supervisor", FromContext(ctx).Desugar().Name())

	ctx = WithName(ctx, "registry")
	require.Equal(t, "supervisor.registry", FromContext(ctx).Desugar().Name())
}

// TestWithLevelRaisesThreshold verifies that a derived logger filters below
// its own level even when the underlying core would let the message pass.
func TestWithLevelRaisesThreshold(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	quieted := zap.New(core, WithLevel(zapcore.WarnLevel)).Sugar()

	ctx := ToContext(context.Background(), quieted)
	Info(ctx, "dropped")
	Warn(ctx, "kept")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "kept", entries[0].Message)
}
