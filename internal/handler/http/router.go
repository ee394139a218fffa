package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carelink-solutions/carelink-auth/internal/auth"
	"github.com/carelink-solutions/carelink-auth/internal/service"
	"github.com/carelink-solutions/carelink-auth/pkg/health"
	"github.com/carelink-solutions/carelink-auth/pkg/middleware"
)

// RouterConfig carries the dependencies of the HTTP surface.
type RouterConfig struct {
	ServiceName string
	Service     *service.UserService
	Tokens      *auth.TokenService
	Cookies     auth.CookiePolicy
	Health      *health.Handler
	Logger      *slog.Logger
	CORS        middleware.CORSConfig
	// PprofCIDRs may reach /debug/pprof. Empty disables profiling.
	PprofCIDRs []string
}

// NewRouter creates a chi router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, cfg.Logger)
	}

	requireSession := middleware.Auth(auth.NewAuthenticator(cfg.Tokens, cfg.Service), auth.SessionToken())

	authHandler := NewAuthHandler(cfg.Service, cfg.Cookies, cfg.Logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/me", authHandler.Me)
			r.Post("/logout-all", authHandler.LogoutAll)
		})
	})

	userHandler := NewUserHandler(cfg.Service, cfg.Cookies, cfg.Logger)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(requireSession)

		r.Get("/", userHandler.List)
		r.Get("/{id}", userHandler.Get)
		r.Put("/{id}", userHandler.Update)
		r.Delete("/{id}", userHandler.Delete)
	})

	return r
}
