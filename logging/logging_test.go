package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestDefaultLoggerFiltersByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&stdout, &stderr)

	logger.Debug("hidden")
	logger.Info("shown", Fields{"stage": "novelty"})
	logger.Warn("careful")
	logger.Error(errors.New("boom"), "failed")

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "[INFO] shown stage=novelty")
	assert.Contains(t, stderr.String(), "[WARN] careful")
	assert.Contains(t, stderr.String(), "[ERROR] failed: boom")
}

func TestDefaultLoggerChildrenShareLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := NewDefaultLoggerWithWriters(&stdout, &stderr)
	child := root.WithFields(Fields{"component": "clusterer"})

	root.SetLevel(DebugLevel)
	child.Debug("visible now")

	assert.Contains(t, stdout.String(), "component=clusterer")
	assert.Contains(t, stdout.String(), "visible now")
}

func TestDefaultLoggerFatalUsesExitHook(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&stdout, &stderr)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal(errors.New("disk"), "cannot continue")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "[FATAL] cannot continue: disk")
}

func TestContextFields(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&stdout, &stderr)

	ctx := ContextWithFields(context.Background(), Fields{"file": "song.json"})
	ctx = ContextWithFields(ctx, Fields{"run": 2})
	logger.WithContext(ctx).Info("analyzing")

	assert.Contains(t, stdout.String(), "file=song.json")
	assert.Contains(t, stdout.String(), "run=2")
}

func TestZapLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFromCore(core, InfoLevel)

	logger.Debug("dropped")
	logger.WithFields(Fields{"component": "labeler"}).Info("labeled", Fields{"sections": 4})
	logger.Error(errors.New("bad"), "oops")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "labeled", entry.Message)
	assert.Equal(t, "labeler", entry.ContextMap()["component"])
	assert.EqualValues(t, 4, entry.ContextMap()["sections"])

	logger.SetLevel(DebugLevel)
	logger.Debug("kept")
	assert.Equal(t, 1, logs.FilterMessage("kept").Len())
}

func TestSetGlobalLoggerNil(t *testing.T) {
	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	SetGlobalLogger(nil)
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
}

func TestDefaultLoggerColorsStderrLevels(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l := NewDefaultLoggerWithWriters(&stdout, &stderr)
	l.useColors = true

	l.Info("plain")
	l.Warn("careful")
	l.Error(errors.New("boom"), "failed")

	assert.NotContains(t, stdout.String(), "\x1b[")
	assert.Contains(t, stderr.String(), "\x1b[33m[WARN] careful")
	assert.Contains(t, stderr.String(), "\x1b[31m[ERROR] failed: boom")
}
