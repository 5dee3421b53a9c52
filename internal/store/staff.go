package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateUsername is returned when a staff username is taken.
var ErrDuplicateUsername = errors.New("username already taken")

// Staff is a librarian account allowed to change the catalog and loans.
type Staff struct {
	ID             uuid.UUID  `db:"id"`
	Username       string     `db:"username"`
	PasswordHash   string     `db:"password_hash"`
	Salt           string     `db:"salt"`
	IsAdmin        bool       `db:"is_admin"`
	FailedAttempts int        `db:"failed_attempts"`
	LockedUntil    *time.Time `db:"locked_until"`
	CreatedAt      time.Time  `db:"created_at"`
}

// InsertStaff stores a new staff account.
func (q *Queries) InsertStaff(ctx context.Context, s *Staff) error {
	s.CreatedAt = now()
	_, err := q.exec(ctx, `
		INSERT INTO staff (id, username, password_hash, salt, is_admin, failed_attempts, locked_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Username, s.PasswordHash, s.Salt, s.IsAdmin, s.FailedAttempts, s.LockedUntil, s.CreatedAt,
	)
	if err != nil {
		if err = classify(err); errors.Is(err, errUniqueViolation) {
			return fmt.Errorf("staff %s: %w", s.Username, ErrDuplicateUsername)
		}
		return fmt.Errorf("insert staff: %w", err)
	}
	return nil
}

// GetStaffByUsername loads a staff account.
func (q *Queries) GetStaffByUsername(ctx context.Context, username string) (*Staff, error) {
	var s Staff
	err := q.get(ctx, &s, `
		SELECT id, username, password_hash, salt, is_admin, failed_attempts, locked_until, created_at
		FROM staff WHERE username = ?`, username)
	if err != nil {
		return nil, notFound(err, "staff", username)
	}
	return &s, nil
}

// RecordLoginAttempt stores the failed-attempt counter and lockout.
func (q *Queries) RecordLoginAttempt(ctx context.Context, id uuid.UUID, failedAttempts int, lockedUntil *time.Time) error {
	_, err := q.exec(ctx, `UPDATE staff SET failed_attempts = ?, locked_until = ? WHERE id = ?`,
		failedAttempts, lockedUntil, id)
	if err != nil {
		return fmt.Errorf("record login attempt: %w", classify(err))
	}
	return nil
}
