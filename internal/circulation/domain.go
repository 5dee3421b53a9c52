// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libradesk/internal/domain"
)

// CreateLoanRequest asks to lend a book to a member. A nil DueDate means the
// default lending period.
type CreateLoanRequest struct {
	BookID   uuid.UUID
	MemberID uuid.UUID
	DueDate  *time.Time
	Notes    string
}

// ReturnRequest closes a loan. FinePaid settles any fine at the desk.
type ReturnRequest struct {
	Condition string `json:"condition,omitempty"`
	Notes     string `json:"notes,omitempty"`
	FinePaid  bool   `json:"fine_paid,omitempty"`
}

// LoanDetail is a loan as shown to staff, refreshed as of today.
type LoanDetail struct {
	domain.Loan
	BookTitle       string          `json:"book_title"`
	MemberName      string          `json:"member_name"`
	DaysOverdue     int             `json:"days_overdue"`
	OutstandingFine decimal.Decimal `json:"outstanding_fine"`
}

// LoanList is a filtered loan listing with its totals.
type LoanList struct {
	Loans       []domain.LoanSummary `json:"loans"`
	Total       int                  `json:"total"`
	Active      int                  `json:"active"`
	Overdue     int                  `json:"overdue"`
	UnpaidFines decimal.Decimal      `json:"unpaid_fines"`
}

// ItemResult is the outcome of one loan in a batch action.
type ItemResult struct {
	LoanID uuid.UUID    `json:"loan_id"`
	OK     bool         `json:"ok"`
	Error  string       `json:"error,omitempty"`
	Loan   *domain.Loan `json:"loan,omitempty"`
	err    error
}

// Err returns the failure of this item, nil on success.
func (r ItemResult) Err() error { return r.err }

// BatchResult reports each item independently; one failure never undoes
// another item's success.
type BatchResult struct {
	Items      []ItemResult    `json:"items"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	TotalFines decimal.Decimal `json:"total_fines"`
}

func (b *BatchResult) add(id uuid.UUID, loan *domain.Loan, err error) {
	if err != nil {
		b.Failed++
		b.Items = append(b.Items, ItemResult{LoanID: id, Error: err.Error(), err: err})
		return
	}
	b.Succeeded++
	b.TotalFines = b.TotalFines.Add(loan.FineAmount)
	b.Items = append(b.Items, ItemResult{LoanID: id, OK: true, Loan: loan})
}

// Stats is the dashboard summary.
type Stats struct {
	TotalBooks    int                  `json:"total_books"`
	ActiveMembers int                  `json:"active_members"`
	ActiveLoans   int                  `json:"active_loans"`
	OverdueLoans  int                  `json:"overdue_loans"`
	UnpaidFines   decimal.Decimal      `json:"unpaid_fines"`
	RecentBooks   []domain.Book        `json:"recent_books"`
	RecentLoans   []domain.LoanSummary `json:"recent_loans"`
}

// Journal event types.
const (
	EventLoanCreated   = "LoanCreated"
	EventLoanReturned  = "LoanReturned"
	EventLoanRefreshed = "LoanRefreshed"
	EventLoanCancelled = "LoanCancelled"
	EventFinePaid      = "FinePaid"
)

// LoanCreatedEvent is journaled when a copy goes out.
type LoanCreatedEvent struct {
	LoanID   uuid.UUID `json:"loan_id"`
	BookID   uuid.UUID `json:"book_id"`
	MemberID uuid.UUID `json:"member_id"`
	LoanDate time.Time `json:"loan_date"`
	DueDate  time.Time `json:"due_date"`
}

// LoanReturnedEvent is journaled when a copy comes back.
type LoanReturnedEvent struct {
	LoanID     uuid.UUID       `json:"loan_id"`
	ReturnDate time.Time       `json:"return_date"`
	Condition  string          `json:"condition"`
	FineAmount decimal.Decimal `json:"fine_amount"`
	FinePaid   bool            `json:"fine_paid"`
}

// LoanRefreshedEvent is journaled when a recompute changes status or fine.
type LoanRefreshedEvent struct {
	LoanID     uuid.UUID       `json:"loan_id"`
	FromStatus string          `json:"from_status"`
	Status     string          `json:"status"`
	FineAmount decimal.Decimal `json:"fine_amount"`
	AsOf       time.Time       `json:"as_of"`
}

// LoanCancelledEvent is journaled when an Active loan is voided.
type LoanCancelledEvent struct {
	LoanID uuid.UUID `json:"loan_id"`
	Notes  string    `json:"notes,omitempty"`
}

// FinePaidEvent is journaled when a fine is settled.
type FinePaidEvent struct {
	LoanID     uuid.UUID       `json:"loan_id"`
	FineAmount decimal.Decimal `json:"fine_amount"`
}
