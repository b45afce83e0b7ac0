package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestFromContext_FallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithKV_AddsFields checks that context-scoped fields reach the output.
func TestWithKV_AddsFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := zap.New(NewCore(zapcore.AddSync(&buf), zap.DebugLevel)).Sugar()

	ctx := ToContext(context.Background(), l)
	ctx = WithName(ctx, "orchestrator")
	ctx = WithKV(ctx, "step", "snap-refresh")

	InfoKV(ctx, "Step finished", "outcome", "no change")

	out := buf.String()
	require.Contains(t, out, "orchestrator")
	require.Contains(t, out, "Step finished")
	require.Contains(t, out, `"step": "snap-refresh"`)
	require.Contains(t, out, `"outcome": "no change"`)
}

// TestNewCore_ErrorIsRed verifies that error entries carry the red ANSI prefix.
func TestNewCore_ErrorIsRed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := zap.New(NewCore(zapcore.AddSync(&buf), zap.DebugLevel)).Sugar()
	l.Error("boom")

	require.Contains(t, buf.String(), "\x1b[31mERROR\x1b[0m")
}
