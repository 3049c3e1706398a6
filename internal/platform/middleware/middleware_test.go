package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "frontdesk/pkg/domain"
	"frontdesk/pkg/requestcontext"
)

type stubValidator struct {
	claims *ActorClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*ActorClaims, error) { return s.claims, s.err }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRequireAuth(t *testing.T) {
	claims := &ActorClaims{
		StaffID:       id.StaffID(uuid.New()),
		CondominiumID: id.CondominiumID(uuid.New()),
		Role:          "resident",
		Name:          "Maria",
		Unit:          "101",
	}
	var seen *http.Request
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { seen = r })

	t.Run("sets actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		RequireAuth(stubValidator{claims: claims}, discard())(next).ServeHTTP(rec, req)

		require.NotNil(t, seen)
		ctx := seen.Context()
		assert.Equal(t, claims.StaffID, requestcontext.StaffID(ctx))
		assert.Equal(t, claims.CondominiumID, requestcontext.CondominiumID(ctx))
		assert.Equal(t, "resident", requestcontext.Role(ctx))
		assert.Equal(t, "101", requestcontext.Unit(ctx))
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireAuth(stubValidator{claims: claims}, discard())(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`, rec.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()
		RequireAuth(stubValidator{err: errors.New("expired")}, discard())(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", got)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestClientIPFromRequest(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	cases := []struct {
		name    string
		header  map[string]string
		remote  string
		trusted []netip.Prefix
		want    string
	}{
		{"forwarded chain behind proxy", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.7"}, "10.0.0.1:80", proxies, "203.0.113.9"},
		{"spoofed leftmost hop ignored", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.9"}, "10.0.0.1:80", proxies, "203.0.113.9"},
		{"untrusted peer ignores headers", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "198.51.100.20:4000", proxies, "198.51.100.20"},
		{"no proxies configured", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "10.0.0.1:80", nil, "10.0.0.1"},
		{"real ip behind proxy", map[string]string{"X-Real-IP": " 198.51.100.2 "}, "10.0.0.1:80", proxies, "198.51.100.2"},
		{"garbage hop stops the walk", map[string]string{"X-Forwarded-For": "203.0.113.9, not-an-ip, 10.0.0.7"}, "10.0.0.1:80", proxies, "10.0.0.7"},
		{"remote v4", nil, "192.0.2.1:5555", nil, "192.0.2.1"},
		{"remote v6", nil, "[::1]:5555", nil, "::1"},
		{"no remote", nil, "", nil, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIPFromRequest(req, tc.trusted))
		})
	}
}

func TestRecoveryAndLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(Logger(logger)(Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), `"status":500`)
}
