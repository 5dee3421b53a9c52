package store

import (
	"context"
	"fmt"
	"time"

	"libradesk/internal/domain"
)

// CountBooksOutOfBounds counts books whose available copies are negative or
// above quantity.
func (q *Queries) CountBooksOutOfBounds(ctx context.Context) (int, error) {
	return q.count(ctx, `SELECT COUNT(*) FROM books WHERE available_copies < 0 OR available_copies > quantity`)
}

// CountMembersOutOfBounds counts members whose borrowed count is negative or
// above their limit.
func (q *Queries) CountMembersOutOfBounds(ctx context.Context) (int, error) {
	return q.count(ctx, `SELECT COUNT(*) FROM members
		WHERE current_books_borrowed < 0 OR current_books_borrowed > max_books_allowed`)
}

// CountBookDrift counts books whose lent-out copies differ from their
// outstanding loans.
func (q *Queries) CountBookDrift(ctx context.Context) (int, error) {
	return q.count(ctx, `
		SELECT COUNT(*) FROM books b
		WHERE b.quantity - b.available_copies <> (
			SELECT COUNT(*) FROM loans l WHERE l.book_id = b.id AND l.status IN (?, ?)
		)`, domain.StatusActive, domain.StatusOverdue)
}

// CountMemberDrift counts members whose borrowed count differs from their
// outstanding loans.
func (q *Queries) CountMemberDrift(ctx context.Context) (int, error) {
	return q.count(ctx, `
		SELECT COUNT(*) FROM members m
		WHERE m.current_books_borrowed <> (
			SELECT COUNT(*) FROM loans l WHERE l.member_id = m.id AND l.status IN (?, ?)
		)`, domain.StatusActive, domain.StatusOverdue)
}

// CountStaleLoans counts Active loans already past due as of today, i.e.
// loans whose stored status has not been refreshed yet.
func (q *Queries) CountStaleLoans(ctx context.Context, today time.Time) (int, error) {
	return q.count(ctx, `SELECT COUNT(*) FROM loans WHERE status = ? AND due_date < ?`,
		domain.StatusActive, domain.DateOf(today))
}

func (q *Queries) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := q.get(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count: %w", classify(err))
	}
	return n, nil
}
