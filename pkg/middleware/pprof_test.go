package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/utafrali/EcommerceGo/pkg/logger"
)

func TestIPAllowlist(t *testing.T) {
	h := IPAllowlist([]string{"10.0.0.0/8", "::1/128", "not-a-cidr"}, logger.Discard())(okHandler())

	tests := []struct {
		remote string
		xff    string
		want   int
	}{
		{"10.1.2.3:5000", "", http.StatusOK},
		{"[::1]:5000", "", http.StatusOK},
		{"192.168.1.10:5000", "", http.StatusForbidden},
		{"192.168.1.10:5000", "10.0.0.1", http.StatusForbidden},
		{"garbage", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.remote+tt.xff, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRegisterPprof(t *testing.T) {
	r := chi.NewRouter()
	RegisterPprof(r, []string{"127.0.0.0/8"}, logger.Discard())

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req.RemoteAddr = "203.0.113.5:9999"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterPprof_DisabledWithoutCIDRs(t *testing.T) {
	r := chi.NewRouter()
	RegisterPprof(r, nil, logger.Discard())

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
