package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/utafrali/EcommerceGo/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	h := RateLimit(0.001, 2, nil, logger.Discard())(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "other clients have their own bucket")
}

func TestRateLimit_KeysByUserWhenAuthenticated(t *testing.T) {
	h := TrustedUserID(RateLimit(0.001, 1, nil, logger.Discard())(okHandler()))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set(UserIDHeader, user)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusOK, send("b"))
}

func TestVisitorStore_EvictsIdleVisitors(t *testing.T) {
	s := newVisitorStore(1, 1, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.allow("a")
	s.allow("b")
	assert.Equal(t, 2, s.len())

	now = now.Add(2 * time.Minute)
	s.allow("c")
	assert.Equal(t, 1, s.len())
}

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded through trusted proxy", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "10.0.0.9:80", "203.0.113.5"},
		{"spoofed leftmost hop", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.5, 10.0.0.1"}, "10.0.0.9:80", "203.0.113.5"},
		{"real ip from trusted proxy", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.9:80", "198.51.100.7"},
		{"garbage forwarded", map[string]string{"X-Forwarded-For": "nope"}, "10.0.0.9:80", "10.0.0.9"},
		{"untrusted peer ignores headers", map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "198.51.100.7"}, "192.0.2.1:5555", "192.0.2.1"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, trusted))
		})
	}
}

func TestRateLimit_SpoofedForwardedForSharesBucket(t *testing.T) {
	h := RateLimit(0.001, 1, []string{"10.0.0.0/8"}, logger.Discard())(okHandler())

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.2"), "header from an untrusted peer is ignored")
}
