package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libradesk/internal/domain"
)

const memberColumns = `id, first_name, last_name, email, phone, address, membership_type,
	membership_start_date, membership_end_date, max_books_allowed, current_books_borrowed,
	is_active, version, created_at, updated_at`

// MemberFilter narrows the member list.
type MemberFilter struct {
	MembershipType string
	Active         *bool
}

// InsertMember registers a member. A taken email yields domain.ErrDuplicateEmail.
func (q *Queries) InsertMember(ctx context.Context, m *domain.Member) error {
	if err := q.checkMember(m); err != nil {
		return err
	}
	ts := now()
	m.Version = 1
	m.CreatedAt, m.UpdatedAt = ts, ts

	_, err := q.exec(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.FirstName, m.LastName, m.Email, m.Phone, m.Address, m.MembershipType,
		m.MembershipStartDate, m.MembershipEndDate, m.MaxBooksAllowed, m.CurrentBooksBorrowed,
		m.IsActive, m.Version, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if err = classify(err); errors.Is(err, errUniqueViolation) {
			return fmt.Errorf("email %s: %w", m.Email, domain.ErrDuplicateEmail)
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// GetMember loads a member by id.
func (q *Queries) GetMember(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	return q.getMember(ctx, id, "")
}

// LockMember loads a member and, on PostgreSQL, holds its row lock until the
// transaction ends.
func (q *Queries) LockMember(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	return q.getMember(ctx, id, q.forUpdate())
}

func (q *Queries) getMember(ctx context.Context, id uuid.UUID, suffix string) (*domain.Member, error) {
	var m domain.Member
	if err := q.get(ctx, &m, `SELECT `+memberColumns+` FROM members WHERE id = ?`+suffix, id); err != nil {
		return nil, notFound(err, "member", id)
	}
	m.MembershipStartDate = domain.DateOf(m.MembershipStartDate)
	return &m, nil
}

// UpdateMember persists every column of m guarded by its version, after the
// borrowed-count bounds check.
func (q *Queries) UpdateMember(ctx context.Context, m *domain.Member) error {
	if err := q.checkMember(m); err != nil {
		return err
	}
	m.UpdatedAt = now()

	n, err := q.exec(ctx, `
		UPDATE members
		SET first_name = ?, last_name = ?, email = ?, phone = ?, address = ?, membership_type = ?,
		    membership_end_date = ?, max_books_allowed = ?, current_books_borrowed = ?, is_active = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		m.FirstName, m.LastName, m.Email, m.Phone, m.Address, m.MembershipType,
		m.MembershipEndDate, m.MaxBooksAllowed, m.CurrentBooksBorrowed, m.IsActive,
		m.UpdatedAt, m.ID, m.Version,
	)
	if err != nil {
		if err = classify(err); errors.Is(err, errUniqueViolation) {
			return fmt.Errorf("email %s: %w", m.Email, domain.ErrDuplicateEmail)
		}
		return fmt.Errorf("update member %s: %w", m.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update member %s at version %d: %w", m.ID, m.Version, ErrConcurrencyConflict)
	}
	m.Version++
	return nil
}

func (q *Queries) checkMember(m *domain.Member) error {
	if err := m.CheckCounters(); err != nil {
		q.store.logger.Error("member counter invariant violated", "member_id", m.ID, "error", err)
		return err
	}
	return nil
}

// DeleteMember removes a member; their loans go with them.
func (q *Queries) DeleteMember(ctx context.Context, id uuid.UUID) error {
	n, err := q.exec(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member %s: %w", id, classify(err))
	}
	if n == 0 {
		return fmt.Errorf("member %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListMembers returns members ordered by last then first name.
func (q *Queries) ListMembers(ctx context.Context, f MemberFilter) ([]domain.Member, error) {
	ds := q.store.dialect.From("members").Select(goqu.L(memberColumns))
	if f.MembershipType != "" {
		ds = ds.Where(goqu.C("membership_type").Eq(f.MembershipType))
	}
	if f.Active != nil {
		ds = ds.Where(goqu.C("is_active").Eq(*f.Active))
	}
	query, args, err := ds.Order(goqu.I("last_name").Asc(), goqu.I("first_name").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build member list: %w", err)
	}

	members := []domain.Member{}
	if err := q.sel(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("list members: %w", classify(err))
	}
	return members, nil
}

// CountActiveMembers returns the number of members allowed to borrow.
func (q *Queries) CountActiveMembers(ctx context.Context) (int, error) {
	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM members WHERE is_active = ?`, true); err != nil {
		return 0, fmt.Errorf("count members: %w", classify(err))
	}
	return n, nil
}
