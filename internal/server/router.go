package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/terraconstructs/gridauth/internal/app"
	authmw "github.com/terraconstructs/gridauth/internal/middleware"
)

// RouterOptions controls the construction of the HTTP router.
type RouterOptions struct {
	App           *app.App
	Logger        hclog.Logger
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"WWW-Authenticate"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles the chi router with shared middleware and the auth endpoints.
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.App != nil {
		h := &handlers{app: opts.App, logger: logger.Named("http")}
		deps := authmw.AuthDependencies{
			APIToken: opts.App.APIToken,
			Sessions: opts.App.Session,
			Cookies:  opts.App.Cookies,
			Logger:   h.logger,
		}

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequestAuth(deps))

			r.Post("/auth/login", h.login)
			r.Post("/auth/logout", h.logout)
			r.With(authmw.RequireSession(deps)).Get("/auth/whoami", h.whoami)

			r.With(authmw.OptionalAuth(deps)).Post("/api/tokens", h.createToken)
			r.With(authmw.RequireAuth(deps)).Get("/api/tokens", h.listTokens)
			r.With(authmw.RequireAuth(deps)).Delete("/api/tokens/{id}", h.revokeToken)
			r.With(authmw.RequireAPIToken(deps)).Get("/api/me", h.me)
		})
	} else {
		logger.Warn("no authentication stack configured; only /health is mounted")
	}

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}
	return r
}

// NewH2CHandler wraps the router with an h2c server for HTTP/2 over cleartext.
func NewH2CHandler(opts RouterOptions) (http.Handler, error) {
	router := NewRouter(opts)
	return h2c.NewHandler(router, &http2.Server{}), nil
}

func requestLogger(logger hclog.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("access")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
