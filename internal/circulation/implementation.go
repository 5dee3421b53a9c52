// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/auth"
	"libradesk/internal/domain"
	"libradesk/internal/store"
	"libradesk/pkg/eventstore"
)

const aggregateType = "loan"

// Options are the lending rules.
type Options struct {
	LoanPeriodDays int
	DailyRate      decimal.Decimal
	Clock          domain.Clock
}

func (o Options) withDefaults() Options {
	if o.LoanPeriodDays <= 0 {
		o.LoanPeriodDays = domain.DefaultLoanPeriodDays
	}
	if o.DailyRate.IsZero() {
		o.DailyRate = domain.DefaultDailyRate
	}
	if o.Clock == nil {
		o.Clock = domain.SystemClock
	}
	return o
}

// service implements the Service interface.
type service struct {
	store   *store.Store
	journal *eventstore.EventStore
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer

	loansCreated  metric.Int64Counter
	loansReturned metric.Int64Counter
	loansRefresh  metric.Int64Counter
	rejected      metric.Int64Counter
}

// NewService creates a new circulation service instance.
func NewService(st *store.Store, journal *eventstore.EventStore, opts Options, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("libradesk/circulation")
	s := &service{
		store:   st,
		journal: journal,
		opts:    opts.withDefaults(),
		logger:  logger.With("component", "circulation"),
		tracer:  otel.Tracer("libradesk/circulation"),
	}
	s.loansCreated, _ = meter.Int64Counter("circulation.loans_created", metric.WithDescription("Loans opened"))
	s.loansReturned, _ = meter.Int64Counter("circulation.loans_returned", metric.WithDescription("Loans closed by a return"))
	s.loansRefresh, _ = meter.Int64Counter("circulation.loans_refreshed", metric.WithDescription("Loans whose status or fine was recomputed"))
	s.rejected, _ = meter.Int64Counter("circulation.rejected", metric.WithDescription("Loan operations refused"))
	return s
}

func (s *service) today() time.Time {
	return domain.DateOf(s.opts.Clock())
}

// CreateLoan lends one copy: book -1, member +1 and a new Active loan, all or nothing.
func (s *service) CreateLoan(ctx context.Context, req CreateLoanRequest) (*LoanDetail, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.create_loan",
		trace.WithAttributes(
			attribute.String("book.id", req.BookID.String()),
			attribute.String("member.id", req.MemberID.String()),
		),
	)
	defer span.End()

	today := s.today()
	loan, err := domain.NewLoan(req.BookID, req.MemberID, today, req.DueDate, s.opts.LoanPeriodDays)
	if err != nil {
		return nil, s.fail(ctx, span, "create", err)
	}
	loan.Notes = req.Notes

	var detail *LoanDetail
	err = s.store.InTx(ctx, "create_loan", func(q *store.Queries) error {
		book, err := q.LockBook(ctx, req.BookID)
		if err != nil {
			return err
		}
		member, err := q.LockMember(ctx, req.MemberID)
		if err != nil {
			return err
		}

		if err := book.Lend(); err != nil {
			return fmt.Errorf("book %s: %w", book.ID, err)
		}
		if err := member.Borrow(); err != nil {
			return fmt.Errorf("member %s: %w", member.ID, err)
		}
		exists, err := q.LoanExists(ctx, book.ID, member.ID, today)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("book %s already lent to member %s today: %w", book.ID, member.ID, domain.ErrDuplicateLoan)
		}

		if err := q.UpdateBook(ctx, book); err != nil {
			return err
		}
		if err := q.UpdateMember(ctx, member); err != nil {
			return err
		}
		if err := q.InsertLoan(ctx, loan); err != nil {
			return err
		}
		if err := s.record(ctx, q, loan.ID, 0, EventLoanCreated, LoanCreatedEvent{
			LoanID:   loan.ID,
			BookID:   book.ID,
			MemberID: member.ID,
			LoanDate: loan.LoanDate,
			DueDate:  loan.DueDate,
		}); err != nil {
			return err
		}

		detail = s.detail(loan, book.Title, member.FullName(), today)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, "create", err)
	}

	s.loansCreated.Add(ctx, 1)
	span.SetAttributes(attribute.String("loan.id", loan.ID.String()))
	s.logger.InfoContext(ctx, "loan created",
		"loan_id", loan.ID, "book_id", loan.BookID, "member_id", loan.MemberID, "due_date", loan.DueDate.Format(time.DateOnly))
	return detail, nil
}

// ReturnLoan closes an Active or Overdue loan as of today. The fine is
// settled first, so a late return carries its fine for the return day.
func (s *service) ReturnLoan(ctx context.Context, loanID uuid.UUID, req ReturnRequest) (*LoanDetail, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_loan",
		trace.WithAttributes(attribute.String("loan.id", loanID.String())),
	)
	defer span.End()

	today := s.today()
	var detail *LoanDetail
	err := s.store.InTx(ctx, "return_loan", func(q *store.Queries) error {
		loan, err := q.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		prev := loan.Version

		loan.Refresh(today, s.opts.DailyRate)
		if err := loan.MarkReturned(today, req.Condition, req.Notes, req.FinePaid); err != nil {
			return fmt.Errorf("return loan %s: %w", loanID, err)
		}

		book, member, err := s.releaseCopy(ctx, q, loan)
		if err != nil {
			return err
		}
		if err := q.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		if err := s.record(ctx, q, loan.ID, prev, EventLoanReturned, LoanReturnedEvent{
			LoanID:     loan.ID,
			ReturnDate: *loan.ReturnDate,
			Condition:  loan.Condition,
			FineAmount: loan.FineAmount,
			FinePaid:   loan.FinePaid,
		}); err != nil {
			return err
		}

		detail = s.detail(loan, book.Title, member.FullName(), today)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, "return", err)
	}

	s.loansReturned.Add(ctx, 1)
	s.logger.InfoContext(ctx, "loan returned",
		"loan_id", loanID, "condition", detail.Condition, "fine", detail.FineAmount.StringFixed(2), "fine_paid", detail.FinePaid)
	return detail, nil
}

// releaseCopy puts the loan's copy back on the shelf and frees the member's slot.
func (s *service) releaseCopy(ctx context.Context, q *store.Queries, loan *domain.Loan) (*domain.Book, *domain.Member, error) {
	book, err := q.LockBook(ctx, loan.BookID)
	if err != nil {
		return nil, nil, err
	}
	member, err := q.LockMember(ctx, loan.MemberID)
	if err != nil {
		return nil, nil, err
	}

	book.Restock()
	member.Release()

	if err := q.UpdateBook(ctx, book); err != nil {
		return nil, nil, err
	}
	if err := q.UpdateMember(ctx, member); err != nil {
		return nil, nil, err
	}
	return book, member, nil
}

// RecomputeOverdueAndFine re-derives status and fine as of today and
// persists them when they changed. Calling it twice on the same day writes at
// most once.
func (s *service) RecomputeOverdueAndFine(ctx context.Context, loanID uuid.UUID) (*LoanDetail, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.recompute",
		trace.WithAttributes(attribute.String("loan.id", loanID.String())),
	)
	defer span.End()

	detail, changed, err := s.recompute(ctx, loanID)
	if err != nil {
		return nil, s.fail(ctx, span, "recompute", err)
	}
	span.SetAttributes(attribute.Bool("loan.changed", changed))
	return detail, nil
}

func (s *service) recompute(ctx context.Context, loanID uuid.UUID) (*LoanDetail, bool, error) {
	today := s.today()
	var (
		detail  *LoanDetail
		changed bool
	)
	err := s.store.InTx(ctx, "recompute_loan", func(q *store.Queries) error {
		loan, err := q.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		prev, fromStatus := loan.Version, loan.Status

		if changed = loan.Refresh(today, s.opts.DailyRate); changed {
			if err := q.UpdateLoan(ctx, loan); err != nil {
				return err
			}
			if err := s.record(ctx, q, loan.ID, prev, EventLoanRefreshed, LoanRefreshedEvent{
				LoanID:     loan.ID,
				FromStatus: fromStatus,
				Status:     loan.Status,
				FineAmount: loan.FineAmount,
				AsOf:       today,
			}); err != nil {
				return err
			}
		}

		detail, err = s.describe(ctx, q, loan, today)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.loansRefresh.Add(ctx, 1)
		s.logger.DebugContext(ctx, "loan refreshed",
			"loan_id", loanID, "status", detail.Status, "fine", detail.FineAmount.StringFixed(2))
	}
	return detail, changed, nil
}

// CancelLoan voids an Active loan and restores both counters. Overdue loans
// have to be returned.
func (s *service) CancelLoan(ctx context.Context, loanID uuid.UUID, notes string) (*LoanDetail, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.cancel_loan",
		trace.WithAttributes(attribute.String("loan.id", loanID.String())),
	)
	defer span.End()

	today := s.today()
	var detail *LoanDetail
	err := s.store.InTx(ctx, "cancel_loan", func(q *store.Queries) error {
		loan, err := q.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		prev := loan.Version

		loan.Refresh(today, s.opts.DailyRate)
		if err := loan.Cancel(notes); err != nil {
			return fmt.Errorf("cancel loan %s: %w", loanID, err)
		}

		book, member, err := s.releaseCopy(ctx, q, loan)
		if err != nil {
			return err
		}
		if err := q.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		if err := s.record(ctx, q, loan.ID, prev, EventLoanCancelled, LoanCancelledEvent{LoanID: loan.ID, Notes: notes}); err != nil {
			return err
		}

		detail = s.detail(loan, book.Title, member.FullName(), today)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, "cancel", err)
	}

	s.logger.InfoContext(ctx, "loan cancelled", "loan_id", loanID)
	return detail, nil
}

// PayFine settles the fine owed as of today. The amount is frozen afterwards.
func (s *service) PayFine(ctx context.Context, loanID uuid.UUID) (*LoanDetail, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.pay_fine",
		trace.WithAttributes(attribute.String("loan.id", loanID.String())),
	)
	defer span.End()

	today := s.today()
	var detail *LoanDetail
	err := s.store.InTx(ctx, "pay_fine", func(q *store.Queries) error {
		loan, err := q.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		prev := loan.Version

		loan.Refresh(today, s.opts.DailyRate)
		if err := loan.PayFine(); err != nil {
			return fmt.Errorf("pay fine on loan %s: %w", loanID, err)
		}
		if err := q.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		if err := s.record(ctx, q, loan.ID, prev, EventFinePaid, FinePaidEvent{LoanID: loan.ID, FineAmount: loan.FineAmount}); err != nil {
			return err
		}

		detail, err = s.describe(ctx, q, loan, today)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, span, "pay_fine", err)
	}

	s.logger.InfoContext(ctx, "fine paid", "loan_id", loanID, "amount", detail.FineAmount.StringFixed(2))
	return detail, nil
}

// GetLoan returns a loan refreshed as of today.
func (s *service) GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanDetail, error) {
	detail, _, err := s.recompute(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListLoans lists loans after bringing stale statuses and overdue fines up to
// date, and totals the listed loans.
func (s *service) ListLoans(ctx context.Context, filter store.LoanFilter) (*LoanList, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.list_loans",
		trace.WithAttributes(attribute.String("filter.status", filter.Status)),
	)
	defer span.End()

	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return nil, domain.Invalid("unknown loan status %q", filter.Status)
	}

	today := s.today()
	if _, err := s.refresh(ctx, store.LoanFilter{Status: domain.StatusActive, DueBefore: today}); err != nil {
		return nil, err
	}

	loans, err := s.store.Reader().ListLoans(ctx, filter)
	if err != nil {
		return nil, err
	}

	list := &LoanList{Loans: loans, UnpaidFines: decimal.Zero}
	for i := range list.Loans {
		l := &list.Loans[i]
		if domain.IsOutstanding(l.Status) {
			fresh := l.Loan
			if fresh.Refresh(today, s.opts.DailyRate) {
				if detail, _, err := s.recompute(ctx, l.ID); err == nil {
					l.Loan = detail.Loan
				} else {
					s.logger.WarnContext(ctx, "loan refresh skipped", "loan_id", l.ID, "error", err)
					l.Loan = fresh
				}
			}
		}

		switch l.Status {
		case domain.StatusActive:
			list.Active++
		case domain.StatusOverdue:
			list.Overdue++
		}
		if l.Status != domain.StatusCancelled {
			list.UnpaidFines = list.UnpaidFines.Add(l.OutstandingFine())
		}
	}
	list.Total = len(list.Loans)
	span.SetAttributes(attribute.Int("loans.count", list.Total))
	return list, nil
}

// LoanEvents returns the journal of one loan, oldest first.
func (s *service) LoanEvents(ctx context.Context, loanID uuid.UUID) ([]eventstore.Event, error) {
	r := s.store.Reader()
	if _, err := r.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.journal.LoadEvents(ctx, r.Ext(), loanID, 0, 0)
}

// ReturnLoans returns each loan in its own transaction.
func (s *service) ReturnLoans(ctx context.Context, loanIDs []uuid.UUID, req ReturnRequest) *BatchResult {
	ctx, span := s.tracer.Start(ctx, "circulation.return_loans",
		trace.WithAttributes(attribute.Int("batch.size", len(loanIDs))),
	)
	defer span.End()

	result := &BatchResult{Items: []ItemResult{}, TotalFines: decimal.Zero}
	for _, id := range loanIDs {
		detail, err := s.ReturnLoan(ctx, id, req)
		result.add(id, loanOf(detail), err)
	}
	span.SetAttributes(attribute.Int("batch.failed", result.Failed))
	return result
}

// CalculateFines recomputes each loan in its own transaction.
func (s *service) CalculateFines(ctx context.Context, loanIDs []uuid.UUID) *BatchResult {
	ctx, span := s.tracer.Start(ctx, "circulation.calculate_fines",
		trace.WithAttributes(attribute.Int("batch.size", len(loanIDs))),
	)
	defer span.End()

	result := &BatchResult{Items: []ItemResult{}, TotalFines: decimal.Zero}
	for _, id := range loanIDs {
		detail, err := s.RecomputeOverdueAndFine(ctx, id)
		result.add(id, loanOf(detail), err)
	}
	span.SetAttributes(attribute.Int("batch.failed", result.Failed))
	return result
}

// RefreshOutstanding recomputes every Active and Overdue loan whose derived
// state moved, returning how many were written. A loan that fails is logged
// and left for the next run.
func (s *service) RefreshOutstanding(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.refresh_outstanding")
	defer span.End()

	n, err := s.refresh(ctx, store.LoanFilter{Outstanding: true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh")
		return n, err
	}
	span.SetAttributes(attribute.Int("loans.refreshed", n))
	return n, nil
}

// RefreshLoans recomputes the outstanding loans of one book or member before
// they are shown elsewhere. Status and limit in filter are ignored.
func (s *service) RefreshLoans(ctx context.Context, filter store.LoanFilter) (int, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.refresh_loans",
		trace.WithAttributes(
			attribute.String("book.id", filter.BookID.String()),
			attribute.String("member.id", filter.MemberID.String()),
		),
	)
	defer span.End()

	filter.Status = ""
	filter.Finished = false
	filter.Outstanding = true
	filter.Limit = 0
	n, err := s.refresh(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh")
		return n, err
	}
	span.SetAttributes(attribute.Int("loans.refreshed", n))
	return n, nil
}

func (s *service) refresh(ctx context.Context, filter store.LoanFilter) (int, error) {
	loans, err := s.store.Reader().ListLoans(ctx, filter)
	if err != nil {
		return 0, err
	}

	today := s.today()
	refreshed := 0
	for _, l := range loans {
		fresh := l.Loan
		if !fresh.Refresh(today, s.opts.DailyRate) {
			continue
		}
		if _, changed, err := s.recompute(ctx, l.ID); err != nil {
			if ctx.Err() != nil {
				return refreshed, ctx.Err()
			}
			s.logger.WarnContext(ctx, "loan refresh skipped", "loan_id", l.ID, "error", err)
		} else if changed {
			refreshed++
		}
	}
	return refreshed, nil
}

// Stats summarises the collection after refreshing outstanding loans.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.stats")
	defer span.End()

	if _, err := s.RefreshOutstanding(ctx); err != nil {
		return nil, err
	}

	r := s.store.Reader()
	stats := &Stats{}
	var err error
	if stats.TotalBooks, err = r.CountBooks(ctx); err != nil {
		return nil, err
	}
	if stats.ActiveMembers, err = r.CountActiveMembers(ctx); err != nil {
		return nil, err
	}
	counts, err := r.CountLoansByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats.ActiveLoans = counts[domain.StatusActive]
	stats.OverdueLoans = counts[domain.StatusOverdue]
	if stats.UnpaidFines, err = r.SumUnpaidFines(ctx); err != nil {
		return nil, err
	}
	if stats.RecentBooks, err = r.RecentBooks(ctx, 5); err != nil {
		return nil, err
	}
	if stats.RecentLoans, err = r.ListLoans(ctx, store.LoanFilter{Limit: 5}); err != nil {
		return nil, err
	}
	return stats, nil
}

// record appends one journal event in the loan's transaction. The journal
// version tracks the loan row version, so a lost race shows up here too.
func (s *service) record(ctx context.Context, q *store.Queries, loanID uuid.UUID, expectedVersion int, eventType string, payload any) error {
	metadata := map[string]any{}
	if id := middleware.GetReqID(ctx); id != "" {
		metadata["request_id"] = id
	}
	if staff, ok := auth.StaffFromContext(ctx); ok {
		metadata["staff"] = staff.Username
	}

	event, err := eventstore.NewEvent(eventType, payload, metadata)
	if err != nil {
		return err
	}
	if err := s.journal.AppendEvents(ctx, q.Ext(), loanID, aggregateType, expectedVersion, []eventstore.Event{event}); err != nil {
		if errors.Is(err, eventstore.ErrConcurrencyConflict) {
			return fmt.Errorf("%w: %v", store.ErrConcurrencyConflict, err)
		}
		return fmt.Errorf("journal %s: %w", eventType, err)
	}
	return nil
}

func (s *service) describe(ctx context.Context, q *store.Queries, loan *domain.Loan, today time.Time) (*LoanDetail, error) {
	book, err := q.GetBook(ctx, loan.BookID)
	if err != nil {
		return nil, err
	}
	member, err := q.GetMember(ctx, loan.MemberID)
	if err != nil {
		return nil, err
	}
	return s.detail(loan, book.Title, member.FullName(), today), nil
}

func (s *service) detail(loan *domain.Loan, title, memberName string, today time.Time) *LoanDetail {
	return &LoanDetail{
		Loan:            *loan,
		BookTitle:       title,
		MemberName:      memberName,
		DaysOverdue:     loan.DaysOverdue(today),
		OutstandingFine: loan.OutstandingFine(),
	}
}

// fail records a refused or failed operation. Business rejections are
// expected traffic; anything else is logged as an error.
func (s *service) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	s.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("reason", reason(err)),
	))

	switch reason(err) {
	case "internal", "invariant_violation":
		s.logger.ErrorContext(ctx, "loan operation failed", "operation", op, "error", err)
	default:
		s.logger.DebugContext(ctx, "loan operation refused", "operation", op, "error", err)
	}
	return err
}

func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrBookUnavailable):
		return "book_unavailable"
	case errors.Is(err, domain.ErrMemberIneligible):
		return "member_ineligible"
	case errors.Is(err, domain.ErrDuplicateLoan):
		return "duplicate_loan"
	case errors.Is(err, domain.ErrLoanNotActive):
		return "loan_not_active"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, store.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvariantViolation):
		return "invariant_violation"
	default:
		return "internal"
	}
}

func loanOf(d *LoanDetail) *domain.Loan {
	if d == nil {
		return nil
	}
	return &d.Loan
}
