package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/EcommerceGo/pkg/health"
	"github.com/utafrali/EcommerceGo/pkg/middleware"
	"github.com/utafrali/EcommerceGo/services/cart/internal/service"
)

// RouterConfig selects how requests are authenticated and throttled.
type RouterConfig struct {
	// JWTSecret enables bearer token validation. When empty the service trusts
	// the X-User-ID header set by the gateway.
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies are the networks whose X-Forwarded-For names the client
	// for the per-IP limit.
	TrustedProxies []string

	// CORSOrigins are the storefront origins allowed to call the API from a
	// browser. PprofCIDRs enables /debug/pprof for those networks.
	CORSOrigins []string
	PprofCIDRs  []string
}

// NewRouter creates a chi router with all cart service routes registered.
func NewRouter(
	cartService *service.CartService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))
	}
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("cart"))
	r.Use(middleware.Tracing("cart"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	authn := middleware.TrustedUserID
	if cfg.JWTSecret != "" {
		authn = middleware.Auth(middleware.JWTValidator(cfg.JWTSecret))
	}

	cartHandler := NewCartHandler(cartService, logger)

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)
		r.Use(authn)
		if cfg.RateLimitRPS > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.TrustedProxies, logger))
		}

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)

		r.Post("/items", cartHandler.AddItem)
		r.Put("/items/{productId}", cartHandler.UpdateItemQuantity)
		r.Delete("/items/{productId}", cartHandler.RemoveItem)
	})

	return r
}
