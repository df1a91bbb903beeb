package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("test")

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)

	c.AddCheck("database", NewPingCheck(pingFunc(func(context.Context) error { return nil })))
	c.AddOptionalCheck("redis", NewPingCheck(pingFunc(func(context.Context) error { return errors.New("connection refused") })))

	status = c.Check(context.Background())
	assert.True(t, status.Healthy, "optional failure keeps the service alive")
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: redis", status.Message)
	require.Contains(t, status.Checks, "redis")
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)

	c.AddCheck("database", NewPingCheck(pingFunc(func(context.Context) error { return errors.New("down") })))
	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: database, redis", status.Message)

	c.RemoveCheck("database")
	c.RemoveCheck("redis")
	assert.True(t, c.Check(context.Background()).Ready)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("test")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Checks["slow"].Message, "deadline exceeded")
}

func TestMiddleware(t *testing.T) {
	var body string
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		body = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	})
	h := ChainHandler(final, SecurityHeadersMiddleware, NoCacheMiddleware, RequestSizeLimitMiddleware(8))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "small", body)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("way too large body")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "payload_too_large")
}
