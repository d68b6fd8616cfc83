package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestZapAdapter_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).With(map[string]interface{}{"runId": "run-1"})

	log.Info("record published", map[string]interface{}{"recordId": "rec1", "cause": errors.New("boom")})
	log.WithError(errors.New("lease lost")).Warn("record skipped", nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "record published", entries[0].Message)
	assert.Equal(t, "run-1", first["runId"])
	assert.Equal(t, "rec1", first["recordId"])
	assert.Equal(t, "boom", first["cause"])

	second := entries[1].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "lease lost", second["error"])
	assert.Equal(t, "run-1", second["runId"])
}

func TestNew_FallsBackToValidLogger(t *testing.T) {
	assert.NotNil(t, New("debug", "json"))
	assert.NotNil(t, New("info", "console"))
	assert.NoError(t, NewNoOpLogger().Sync())
}
