// internal/auth/implementation.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"libradesk/internal/domain"
	"libradesk/internal/store"
)

const (
	minPasswordLen   = 8
	maxFailedLogins  = 5
	lockoutDuration  = 15 * time.Minute
	defaultPerMinute = 5
)

// service implements the Service interface.
type service struct {
	store       *store.Store
	tokens      *TokenIssuer
	rateLimiter *rate.Limiter
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new auth service. loginsPerMinute bounds login
// attempts across all accounts.
func NewService(st *store.Store, tokens *TokenIssuer, loginsPerMinute int, logger *slog.Logger) Service {
	if loginsPerMinute <= 0 {
		loginsPerMinute = defaultPerMinute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		store:       st,
		tokens:      tokens,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(loginsPerMinute)), loginsPerMinute),
		logger:      logger.With("component", "auth"),
		now:         time.Now,
	}
}

// CreateStaff registers a staff account.
func (s *service) CreateStaff(ctx context.Context, username, password string, admin bool) (*Principal, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, domain.Invalid("username is required")
	}
	if len(password) < minPasswordLen {
		return nil, domain.Invalid("password must be at least %d characters", minPasswordLen)
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	staff := &store.Staff{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Salt:         salt,
		IsAdmin:      admin,
	}
	if err := s.store.InTx(ctx, "create_staff", func(q *store.Queries) error {
		return q.InsertStaff(ctx, staff)
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "staff account created", "username", username, "admin", admin)
	return &Principal{ID: staff.ID, Username: staff.Username, Admin: staff.IsAdmin}, nil
}

// Login checks credentials and issues a token. Repeated failures lock the
// account for a while; unknown users and bad passwords look the same.
func (s *service) Login(ctx context.Context, username, password string) (*Token, error) {
	if !s.rateLimiter.Allow() {
		return nil, fmt.Errorf("login: %w", domain.ErrTooManyRequests)
	}
	username = strings.ToLower(strings.TrimSpace(username))

	staff, err := s.store.Reader().GetStaffByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("authentication failed: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}

	now := s.now().UTC()
	if staff.LockedUntil != nil && now.Before(*staff.LockedUntil) {
		s.logger.WarnContext(ctx, "login on locked account", "username", username)
		return nil, fmt.Errorf("account locked: %w", domain.ErrUnauthorized)
	}

	ok, err := verifyPassword(password, staff.Salt, staff.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		failed := staff.FailedAttempts + 1
		var lockedUntil *time.Time
		if failed >= maxFailedLogins {
			until := now.Add(lockoutDuration)
			lockedUntil = &until
			failed = 0
			s.logger.WarnContext(ctx, "staff account locked", "username", username, "until", until)
		}
		if err := s.recordAttempt(ctx, staff.ID, failed, lockedUntil); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("authentication failed: %w", domain.ErrUnauthorized)
	}

	if staff.FailedAttempts > 0 || staff.LockedUntil != nil {
		if err := s.recordAttempt(ctx, staff.ID, 0, nil); err != nil {
			return nil, err
		}
	}

	p := Principal{ID: staff.ID, Username: staff.Username, Admin: staff.IsAdmin}
	signed, expires, err := s.tokens.Issue(p)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "staff logged in", "username", username)
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires, Staff: p}, nil
}

func (s *service) recordAttempt(ctx context.Context, id uuid.UUID, failed int, lockedUntil *time.Time) error {
	return s.store.InTx(ctx, "record_login", func(q *store.Queries) error {
		return q.RecordLoginAttempt(ctx, id, failed, lockedUntil)
	})
}

// Verify parses a bearer token.
func (s *service) Verify(_ context.Context, token string) (Principal, error) {
	p, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return p, nil
}
