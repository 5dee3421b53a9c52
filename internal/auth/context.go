// internal/auth/context.go
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the authenticated staff member behind a request.
type Principal struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Admin    bool      `json:"admin"`
}

type principalKey struct{}

// WithStaff stores the principal in the context.
func WithStaff(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// StaffFromContext returns the principal stored by the auth middleware.
func StaffFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
