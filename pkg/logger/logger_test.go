package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLogger_FieldsReachCore(t *testing.T) {
	core, logs := observer.New(LevelDebug)
	l := FromZap(zap.New(core)).With(Component("lives"))

	l.Warn("no lives remaining", UserID("u1"), Lives(0), Err(errors.New("boom")))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "lives", ctx["component"])
		assert.Equal(t, "u1", ctx["user_id"])
		assert.Equal(t, int64(0), ctx["lives"])
		assert.Equal(t, "boom", ctx["error"])
	}
}

func TestContextRoundTrip(t *testing.T) {
	core, logs := observer.New(LevelInfo)
	l := FromZap(zap.New(core))

	ctx := WithContext(context.Background(), l.WithRequestID("req-1"))
	FromContext(ctx).Info("hello")

	assert.Equal(t, "req-1", logs.All()[0].ContextMap()[RequestIDKey])

	// No logger in context: must not panic.
	FromContext(context.Background()).Info("dropped")
}

func TestNew_Presets(t *testing.T) {
	l, err := New(Options{Environment: "production", Level: LevelWarn})
	assert.NoError(t, err)
	assert.NotNil(t, l.Zap())

	l, err = New(Options{Environment: "development", Level: LevelDebug, Format: "json"})
	assert.NoError(t, err)
	assert.NotNil(t, l)
}
