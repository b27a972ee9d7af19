package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		" warn": slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLoggerFor(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerFor(&buf, "json", slog.LevelInfo)
	require.NoError(t, err)
	l.Debug("hidden")
	l.Info("shown", "n", 5)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, float64(5), rec["n"])

	buf.Reset()
	l, err = NewLoggerFor(&buf, "", slog.LevelDebug)
	require.NoError(t, err)
	l.Debug("text record")
	assert.Contains(t, buf.String(), `msg="text record"`)

	_, err = NewLoggerFor(&buf, "xml", slog.LevelInfo)
	assert.Error(t, err)
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewTextLogger(&buf, slog.LevelDebug).
		WithDispatch("d-1").
		WithDevice("Go CPU", "cpu").
		WithStep("compile")
	l.Info("ready")

	out := buf.String()
	assert.Contains(t, out, "dispatch=d-1")
	assert.Contains(t, out, `device="Go CPU"`)
	assert.Contains(t, out, "device_type=cpu")
	assert.Contains(t, out, "step=compile")
}

func TestLogger_LogStep(t *testing.T) {
	var buf bytes.Buffer
	l := NewTextLogger(&buf, slog.LevelInfo)

	l.LogStep(context.Background(), "allocate", time.Millisecond, nil)
	assert.Empty(t, buf.String(), "successful steps log at debug")

	l.LogStep(context.Background(), "allocate", time.Millisecond, errors.New("out of memory"))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), `error="out of memory"`)
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}
