package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libradesk/internal/domain"
)

const loanColumns = `id, book_id, member_id, loan_date, due_date, return_date, status, fine_amount,
	fine_paid, return_condition, notes, version, created_at, updated_at`

// LoanFilter narrows a loan listing. Zero values mean "any".
type LoanFilter struct {
	Status      string
	BookID      uuid.UUID
	MemberID    uuid.UUID
	Outstanding bool // only Active and Overdue
	Finished    bool // only Returned and Cancelled
	DueBefore   time.Time
	Limit       int
}

// InsertLoan records a new loan. A loan for the same book, member and day
// already on file yields domain.ErrDuplicateLoan.
func (q *Queries) InsertLoan(ctx context.Context, l *domain.Loan) error {
	if err := checkLoan(l); err != nil {
		return err
	}
	ts := now()
	l.Version = 1
	l.CreatedAt, l.UpdatedAt = ts, ts

	_, err := q.exec(ctx, `
		INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.BookID, l.MemberID, l.LoanDate, l.DueDate, l.ReturnDate, l.Status, l.FineAmount,
		l.FinePaid, l.Condition, l.Notes, l.Version, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if err = classify(err); errors.Is(err, errUniqueViolation) {
			return fmt.Errorf("loan of book %s to member %s on %s: %w",
				l.BookID, l.MemberID, l.LoanDate.Format(time.DateOnly), domain.ErrDuplicateLoan)
		}
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

// LoanExists reports whether a loan with the given identity is on file.
func (q *Queries) LoanExists(ctx context.Context, bookID, memberID uuid.UUID, loanDate time.Time) (bool, error) {
	var n int
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM loans WHERE book_id = ? AND member_id = ? AND loan_date = ?`,
		bookID, memberID, domain.DateOf(loanDate))
	if err != nil {
		return false, fmt.Errorf("check loan: %w", classify(err))
	}
	return n > 0, nil
}

// GetLoan loads a loan by id.
func (q *Queries) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return q.getLoan(ctx, id, "")
}

// LockLoan loads a loan and, on PostgreSQL, holds its row lock until the
// transaction ends.
func (q *Queries) LockLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return q.getLoan(ctx, id, q.forUpdate())
}

func (q *Queries) getLoan(ctx context.Context, id uuid.UUID, suffix string) (*domain.Loan, error) {
	var l domain.Loan
	if err := q.get(ctx, &l, `SELECT `+loanColumns+` FROM loans WHERE id = ?`+suffix, id); err != nil {
		return nil, notFound(err, "loan", id)
	}
	normalizeLoanDates(&l)
	return &l, nil
}

// UpdateLoan persists the mutable columns of l guarded by its version.
func (q *Queries) UpdateLoan(ctx context.Context, l *domain.Loan) error {
	if err := checkLoan(l); err != nil {
		q.store.logger.Error("loan invariant violated", "loan_id", l.ID, "error", err)
		return err
	}
	l.UpdatedAt = now()

	n, err := q.exec(ctx, `
		UPDATE loans
		SET due_date = ?, return_date = ?, status = ?, fine_amount = ?, fine_paid = ?,
		    return_condition = ?, notes = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		l.DueDate, l.ReturnDate, l.Status, l.FineAmount, l.FinePaid,
		l.Condition, l.Notes, l.UpdatedAt, l.ID, l.Version,
	)
	if err != nil {
		return fmt.Errorf("update loan %s: %w", l.ID, classify(err))
	}
	if n == 0 {
		return fmt.Errorf("update loan %s at version %d: %w", l.ID, l.Version, ErrConcurrencyConflict)
	}
	l.Version++
	return nil
}

func checkLoan(l *domain.Loan) error {
	if l.FineAmount.IsNegative() {
		return fmt.Errorf("%w: loan %s fine_amount %s is negative", domain.ErrInvariantViolation, l.ID, l.FineAmount)
	}
	if !domain.ValidStatus(l.Status) {
		return fmt.Errorf("%w: loan %s has unknown status %q", domain.ErrInvariantViolation, l.ID, l.Status)
	}
	return nil
}

// ListLoans returns loans joined with book titles and member names, newest
// loan date first.
func (q *Queries) ListLoans(ctx context.Context, f LoanFilter) ([]domain.LoanSummary, error) {
	ds := q.store.dialect.
		From(goqu.T("loans").As("l")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("l.member_id")))).
		Select(
			goqu.I("l.id"), goqu.I("l.book_id"), goqu.I("l.member_id"), goqu.I("l.loan_date"),
			goqu.I("l.due_date"), goqu.I("l.return_date"), goqu.I("l.status"), goqu.I("l.fine_amount"),
			goqu.I("l.fine_paid"), goqu.I("l.return_condition"), goqu.I("l.notes"), goqu.I("l.version"),
			goqu.I("l.created_at"), goqu.I("l.updated_at"),
			goqu.I("b.title").As("book_title"),
			goqu.L(`m.first_name || ' ' || m.last_name`).As("member_name"),
		)

	if f.Status != "" {
		ds = ds.Where(goqu.I("l.status").Eq(f.Status))
	}
	if f.BookID != uuid.Nil {
		ds = ds.Where(goqu.I("l.book_id").Eq(f.BookID.String()))
	}
	if f.MemberID != uuid.Nil {
		ds = ds.Where(goqu.I("l.member_id").Eq(f.MemberID.String()))
	}
	if f.Outstanding {
		ds = ds.Where(goqu.I("l.status").In(domain.StatusActive, domain.StatusOverdue))
	}
	if f.Finished {
		ds = ds.Where(goqu.I("l.status").In(domain.StatusReturned, domain.StatusCancelled))
	}
	if !f.DueBefore.IsZero() {
		ds = ds.Where(goqu.I("l.due_date").Lt(domain.DateOf(f.DueBefore)))
	}
	ds = ds.Order(goqu.I("l.loan_date").Desc(), goqu.I("l.created_at").Desc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build loan list: %w", err)
	}

	loans := []domain.LoanSummary{}
	if err := q.sel(ctx, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("list loans: %w", classify(err))
	}
	for i := range loans {
		normalizeLoanDates(&loans[i].Loan)
	}
	return loans, nil
}

// CountLoansByStatus returns the number of loans per status code.
func (q *Queries) CountLoansByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := q.sel(ctx, &rows, `SELECT status, COUNT(*) AS n FROM loans GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count loans: %w", classify(err))
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// SumUnpaidFines totals the fines not yet paid, on open and closed loans alike.
// Amounts are summed here rather than in SQL so SQLite's text decimals stay exact.
func (q *Queries) SumUnpaidFines(ctx context.Context) (decimal.Decimal, error) {
	var fines []decimal.Decimal
	if err := q.sel(ctx, &fines, `SELECT fine_amount FROM loans WHERE fine_paid = ? AND status <> ?`,
		false, domain.StatusCancelled); err != nil {
		return decimal.Zero, fmt.Errorf("sum fines: %w", classify(err))
	}
	return decimal.Sum(decimal.Zero, fines...), nil
}

// normalizeLoanDates strips driver-specific zones from date columns.
func normalizeLoanDates(l *domain.Loan) {
	l.LoanDate = domain.DateOf(l.LoanDate)
	l.DueDate = domain.DateOf(l.DueDate)
	if l.ReturnDate != nil {
		d := domain.DateOf(*l.ReturnDate)
		l.ReturnDate = &d
	}
}
