// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"

	"libradesk/internal/store"
	"libradesk/pkg/eventstore"
)

// Service runs the loan lifecycle and keeps book and member counters in step
// with it. Every mutating call is one transaction; a store.ErrConcurrencyConflict
// means nothing was applied and the whole call may be retried.
type Service interface {
	CreateLoan(ctx context.Context, req CreateLoanRequest) (*LoanDetail, error)
	ReturnLoan(ctx context.Context, loanID uuid.UUID, req ReturnRequest) (*LoanDetail, error)
	RecomputeOverdueAndFine(ctx context.Context, loanID uuid.UUID) (*LoanDetail, error)
	CancelLoan(ctx context.Context, loanID uuid.UUID, notes string) (*LoanDetail, error)
	PayFine(ctx context.Context, loanID uuid.UUID) (*LoanDetail, error)

	GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanDetail, error)
	ListLoans(ctx context.Context, filter store.LoanFilter) (*LoanList, error)
	LoanEvents(ctx context.Context, loanID uuid.UUID) ([]eventstore.Event, error)

	ReturnLoans(ctx context.Context, loanIDs []uuid.UUID, req ReturnRequest) *BatchResult
	CalculateFines(ctx context.Context, loanIDs []uuid.UUID) *BatchResult
	RefreshOutstanding(ctx context.Context) (int, error)
	RefreshLoans(ctx context.Context, filter store.LoanFilter) (int, error)

	Stats(ctx context.Context) (*Stats, error)
}
