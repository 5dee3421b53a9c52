// internal/auth/middleware.go
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"libradesk/internal/domain"
	"libradesk/internal/httpx"
)

// RequireStaff rejects requests without a valid bearer token and stores the
// principal in the request context.
func RequireStaff(svc Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httpx.WriteError(w, r, logger, fmt.Errorf("missing bearer token: %w", domain.ErrUnauthorized))
				return
			}

			p, err := svc.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				httpx.WriteError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithStaff(r.Context(), p)))
		})
	}
}

// RequireAdmin lets only admin staff through. It runs after RequireStaff.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := StaffFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, r, logger, domain.ErrUnauthorized)
				return
			}
			if !p.Admin {
				httpx.WriteError(w, r, logger, fmt.Errorf("staff %s is not an admin: %w", p.Username, domain.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
