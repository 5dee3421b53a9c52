// internal/auth/service.go
package auth

import (
	"context"
	"time"
)

// Service manages staff accounts and their tokens.
type Service interface {
	CreateStaff(ctx context.Context, username, password string, admin bool) (*Principal, error)
	Login(ctx context.Context, username, password string) (*Token, error)
	Verify(ctx context.Context, token string) (Principal, error)
}

// Token is returned by a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Staff       Principal `json:"staff"`
}
