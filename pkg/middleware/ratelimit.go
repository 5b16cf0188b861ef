package middleware

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/EcommerceGo/pkg/httputil"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorStore keeps one token bucket per client and forgets clients that
// have been idle longer than ttl.
type visitorStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

func newVisitorStore(rps float64, burst int, ttl time.Duration) *visitorStore {
	return &visitorStore{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *visitorStore) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	v, ok := s.visitors[key]
	if !ok {
		s.evictLocked(now)
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// evictLocked drops idle visitors. It runs when a new visitor arrives, so
// the map never outgrows the set of recently active clients.
func (s *visitorStore) evictLocked(now time.Time) {
	for k, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.ttl {
			delete(s.visitors, k)
		}
	}
}

func (s *visitorStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimit enforces a token bucket per client: the authenticated user when
// one is known, else the client IP. Forwarded headers name the client only
// when the connection comes from one of trustedProxies. Over-limit requests
// get 429.
func RateLimit(rps float64, burst int, trustedProxies []string, l *slog.Logger) func(http.Handler) http.Handler {
	store := newVisitorStore(rps, burst, 3*time.Minute)
	trusted := parsePrefixes(trustedProxies, l)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r, trusted)
			if !store.allow(key) {
				l.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("client", key),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "RATE_LIMITED", Message: "too many requests"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request, trusted []netip.Prefix) string {
	if uid := UserIDFromContext(r.Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + clientIP(r, trusted)
}

// clientIP is the connection address unless that address is a trusted
// proxy. Then it is the nearest X-Forwarded-For hop that is not itself a
// trusted proxy, falling back to X-Real-IP.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host := remoteHost(r)
	addr, err := netip.ParseAddr(host)
	if err != nil || !containsAddr(trusted, addr) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !containsAddr(trusted, hop) {
				return hop.Unmap().String()
			}
		}
	}
	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return host
}
