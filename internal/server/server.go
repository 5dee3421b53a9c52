// Package server assembles the HTTP API: middleware, authentication and the
// book, member and loan routes under /api/v1.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"libradesk/internal/auth"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/domain"
	"libradesk/internal/httpx"
	"libradesk/internal/membership"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the routes.
type Deps struct {
	DB          Pinger
	Auth        auth.Service
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
}

// Options tune the outer middleware.
type Options struct {
	RateLimit          RateLimitConfig
	CORSAllowedOrigins []string
}

// NewRouter builds the API handler.
func NewRouter(deps Deps, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(RateLimiter(opts.RateLimit, logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, logger, domain.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, httpx.ErrorResponse{
			Code:    http.StatusMethodNotAllowed,
			Message: "Method not allowed.",
		})
	})

	requireStaff := auth.RequireStaff(deps.Auth, logger)
	authHandler := auth.NewHandler(deps.Auth, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", healthz(deps.DB, logger))
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Group(func(r chi.Router) {
			r.Use(requireStaff)
			r.Get("/auth/me", authHandler.HandleMe)
			r.With(auth.RequireAdmin(logger)).Post("/auth/staff", authHandler.HandleCreateStaff)
		})

		catalog.NewHandler(deps.Catalog, logger).Mount(r, requireStaff)
		membership.NewHandler(deps.Membership, logger).Mount(r, requireStaff)
		circulation.NewHandler(deps.Circulation, logger).Mount(r, requireStaff)
	})
	return r
}

func healthz(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logger.ErrorContext(ctx, "health check failed", "error", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// requestLogger echoes the request id and logs one line per request with its
// status and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			w.Header().Set(middleware.RequestIDHeader, middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				level := slog.LevelInfo
				if ww.Status() >= http.StatusInternalServerError {
					level = slog.LevelError
				}
				logger.Log(r.Context(), level, "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
					"remote", r.RemoteAddr,
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
