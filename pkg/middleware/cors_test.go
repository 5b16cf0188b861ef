package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	h := CORS(DefaultCORSConfig("https://shop.example.com"))(okHandler())

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{"no origin", http.MethodGet, "", false, http.StatusOK, ""},
		{"allowed origin", http.MethodGet, "https://shop.example.com", false, http.StatusOK, "https://shop.example.com"},
		{"foreign origin", http.MethodGet, "https://evil.example.com", false, http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://shop.example.com", true, http.StatusNoContent, "https://shop.example.com"},
		{"foreign preflight", http.MethodOptions, "https://evil.example.com", true, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/cart", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.preflight && tt.wantOrigin != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
			}
		})
	}
}

func TestCORS_WildcardIgnoredWithCredentials(t *testing.T) {
	cfg := DefaultCORSConfig("*")
	cfg.AllowCredentials = true

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://any.example.com")
	rec := httptest.NewRecorder()
	CORS(cfg)(okHandler()).ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	cfg.AllowCredentials = false
	rec = httptest.NewRecorder()
	CORS(cfg)(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNoStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
}
