// internal/audit/checks.go
package audit

import (
	"context"
	"strconv"
	"time"

	"libradesk/internal/store"
)

// InventoryChecks returns the counter and status checks over st. today
// supplies the calendar day used for the stale-status check.
func InventoryChecks(st *store.Store, today func() time.Time) []Check {
	zero := Threshold{Operator: "==", Value: 0}
	count := func(fn func(context.Context, *store.Queries) (int, error)) func(context.Context) (float64, error) {
		return func(ctx context.Context) (float64, error) {
			n, err := fn(ctx, st.Reader())
			return float64(n), err
		}
	}

	return []Check{
		{
			Name:       "book-counter-bounds",
			Hypothesis: "Every book has 0 <= available_copies <= quantity",
			Query: count(func(ctx context.Context, q *store.Queries) (int, error) {
				return q.CountBooksOutOfBounds(ctx)
			}),
			Threshold: zero,
		},
		{
			Name:       "member-counter-bounds",
			Hypothesis: "Every member has 0 <= current_books_borrowed <= max_books_allowed",
			Query: count(func(ctx context.Context, q *store.Queries) (int, error) {
				return q.CountMembersOutOfBounds(ctx)
			}),
			Threshold: zero,
		},
		{
			Name:       "book-loan-agreement",
			Hypothesis: "Copies lent out match the book's Active and Overdue loans",
			Query: count(func(ctx context.Context, q *store.Queries) (int, error) {
				return q.CountBookDrift(ctx)
			}),
			Threshold: zero,
		},
		{
			Name:       "member-loan-agreement",
			Hypothesis: "Books borrowed match the member's Active and Overdue loans",
			Query: count(func(ctx context.Context, q *store.Queries) (int, error) {
				return q.CountMemberDrift(ctx)
			}),
			Threshold: zero,
		},
		{
			Name:       "stale-loan-status",
			Hypothesis: "No loan past its due date is still stored as Active",
			Query: count(func(ctx context.Context, q *store.Queries) (int, error) {
				return q.CountStaleLoans(ctx, today())
			}),
			Threshold: zero,
		},
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
