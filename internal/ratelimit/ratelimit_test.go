package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frontdesk/internal/platform/middleware"
	"frontdesk/pkg/platform/circuit"
	"frontdesk/pkg/requestcontext"
)

func TestLocalLimiter_BurstThenDeny(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(Limit{Requests: 3, Window: time.Minute})
	l.now = func() time.Time { return now }

	for i := range 3 {
		res, err := l.Allow(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}
	res, err := l.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.InDelta(t, 20*time.Second, res.RetryAfter, float64(time.Second))

	other, err := l.Allow(context.Background(), "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestLocalLimiter_Refills(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(Limit{Requests: 2, Window: time.Minute})
	l.now = func() time.Time { return now }

	for range 2 {
		_, _ = l.Allow(context.Background(), "ip")
	}
	res, _ := l.Allow(context.Background(), "ip")
	require.False(t, res.Allowed)

	now = now.Add(31 * time.Second)
	res, _ = l.Allow(context.Background(), "ip")
	assert.True(t, res.Allowed)
}

func TestLocalLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(Limit{Requests: 5, Window: time.Minute})
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	_, _ = l.Allow(context.Background(), "b")
	require.Equal(t, 2, l.Len())

	now = now.Add(3 * time.Minute)
	_, _ = l.Allow(context.Background(), "c")
	assert.Equal(t, 1, l.Len())
}

func TestLocalLimiter_ZeroLimitAllows(t *testing.T) {
	res, err := NewLocalLimiter(Limit{}).Allow(context.Background(), "ip")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

type failingLimiter struct{ calls int }

func (f *failingLimiter) Allow(context.Context, string) (Result, error) {
	f.calls++
	return Result{}, errors.New("redis: connection refused")
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (Result, error) {
	return Result{Limit: 1, RetryAfter: 1500 * time.Millisecond, ResetAt: time.Now().Add(time.Minute)}, nil
}

func serve(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ver/x", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "test"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMiddleware_Rejects(t *testing.T) {
	m := New(denyLimiter{}, discard())
	rec := serve(m.Handler(ok), "10.0.0.1")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","message":"Too many requests from this IP address. Please try again later.","retry_after":2}`, rec.Body.String())
}

func TestMiddleware_FallsBackWhenPrimaryFails(t *testing.T) {
	primary := &failingLimiter{}
	fallback := NewLocalLimiter(Limit{Requests: 1, Window: time.Minute})
	m := New(primary, discard(),
		WithFallback(fallback),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))),
	)
	h := m.Handler(ok)

	rec := serve(h, "10.0.0.9")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", rec.Header().Get("X-RateLimit-Status"))

	rec = serve(h, "10.0.0.9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Breaker is open now, so the primary is no longer consulted.
	serve(h, "10.0.0.10")
	assert.Equal(t, 2, primary.calls)
}

func TestMiddleware_FailsOpenWithoutFallback(t *testing.T) {
	m := New(&failingLimiter{}, discard())
	assert.Equal(t, http.StatusOK, serve(m.Handler(ok), "10.0.0.1").Code)
}

func TestMiddleware_Disabled(t *testing.T) {
	m := New(denyLimiter{}, discard(), WithDisabled(true))
	assert.Equal(t, http.StatusOK, serve(m.Handler(ok), "10.0.0.1").Code)
}

func TestMiddleware_SpoofedForwardedForSharesPeerBucket(t *testing.T) {
	m := New(NewLocalLimiter(Limit{Requests: 1, Window: time.Minute}), discard())
	send := func(h http.Handler, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/ver/x", nil)
		req.RemoteAddr = "198.51.100.20:4000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	direct := middleware.ClientMetadata(nil)(m.Handler(ok))
	assert.Equal(t, http.StatusOK, send(direct, "1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send(direct, "2.2.2.2"))

	proxied := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")}
	m = New(NewLocalLimiter(Limit{Requests: 1, Window: time.Minute}), discard())
	behindProxy := middleware.ClientMetadata(proxied)(m.Handler(ok))
	assert.Equal(t, http.StatusOK, send(behindProxy, "203.0.113.1"))
	assert.Equal(t, http.StatusOK, send(behindProxy, "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, send(behindProxy, "203.0.113.1"))
}
