package middleware

import "net/http"

// NoStore marks responses as private and uncacheable. Carts are per user and
// change on every mutation, so neither shared proxies nor the browser may
// reuse a response.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private, no-store")
		next.ServeHTTP(w, r)
	})
}
