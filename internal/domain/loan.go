package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Loan status codes.
const (
	StatusActive    = "ACT"
	StatusReturned  = "RET"
	StatusOverdue   = "OVE"
	StatusCancelled = "CAN"
)

// Return condition tags. They are recorded on the loan and have no effect on
// inventory.
const (
	ConditionGood    = "GOOD"
	ConditionMinor   = "MINOR"
	ConditionDamaged = "DAMAGED"
	ConditionLost    = "LOST"
)

// DefaultLoanPeriodDays is the lending period used when no due date is given.
const DefaultLoanPeriodDays = 14

// DefaultDailyRate is the fine charged per overdue day.
var DefaultDailyRate = decimal.NewFromInt(1)

var statusNames = map[string]string{
	StatusActive:    "Active",
	StatusReturned:  "Returned",
	StatusOverdue:   "Overdue",
	StatusCancelled: "Cancelled",
}

// ValidStatus reports whether code is a known loan status.
func ValidStatus(code string) bool {
	_, ok := statusNames[code]
	return ok
}

// StatusName returns the display name of a status code.
func StatusName(code string) string {
	return statusNames[code]
}

// ValidCondition reports whether c is a known return condition.
func ValidCondition(c string) bool {
	switch c {
	case ConditionGood, ConditionMinor, ConditionDamaged, ConditionLost:
		return true
	}
	return false
}

// IsTerminal reports whether status can no longer change.
func IsTerminal(status string) bool {
	return status == StatusReturned || status == StatusCancelled
}

// IsOutstanding reports whether the loan still holds a copy and a borrowing slot.
func IsOutstanding(status string) bool {
	return status == StatusActive || status == StatusOverdue
}

// Loan records one copy of a book lent to one member.
type Loan struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	BookID     uuid.UUID       `json:"book_id" db:"book_id"`
	MemberID   uuid.UUID       `json:"member_id" db:"member_id"`
	LoanDate   time.Time       `json:"loan_date" db:"loan_date"`
	DueDate    time.Time       `json:"due_date" db:"due_date"`
	ReturnDate *time.Time      `json:"return_date,omitempty" db:"return_date"`
	Status     string          `json:"status" db:"status"`
	FineAmount decimal.Decimal `json:"fine_amount" db:"fine_amount"`
	FinePaid   bool            `json:"fine_paid" db:"fine_paid"`
	Condition  string          `json:"condition,omitempty" db:"return_condition"`
	Notes      string          `json:"notes" db:"notes"`
	Version    int             `json:"version" db:"version"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// LoanSummary is a loan joined with the names needed to display it.
type LoanSummary struct {
	Loan
	BookTitle  string `json:"book_title" db:"book_title"`
	MemberName string `json:"member_name" db:"member_name"`
}

// NewLoan builds an Active loan dated today. A nil due date defaults to
// today plus periodDays.
func NewLoan(bookID, memberID uuid.UUID, today time.Time, due *time.Time, periodDays int) (*Loan, error) {
	loanDate := DateOf(today)
	if periodDays <= 0 {
		periodDays = DefaultLoanPeriodDays
	}
	dueDate := loanDate.AddDate(0, 0, periodDays)
	if due != nil {
		dueDate = DateOf(*due)
		if dueDate.Before(loanDate) {
			return nil, Invalid("due date %s is before loan date %s", dueDate.Format(time.DateOnly), loanDate.Format(time.DateOnly))
		}
	}
	return &Loan{
		ID:         uuid.New(),
		BookID:     bookID,
		MemberID:   memberID,
		LoanDate:   loanDate,
		DueDate:    dueDate,
		Status:     StatusActive,
		FineAmount: decimal.Zero,
	}, nil
}

// DeriveStatus computes a loan's status as of today. Returned and Cancelled
// are sticky; otherwise a recorded return wins, then a passed due date.
func DeriveStatus(current string, returnDate *time.Time, dueDate, today time.Time) string {
	if IsTerminal(current) {
		return current
	}
	if returnDate != nil {
		return StatusReturned
	}
	if DateOf(dueDate).Before(DateOf(today)) {
		return StatusOverdue
	}
	return StatusActive
}

// CalculateFine returns the fine owed as of today. Only unpaid overdue loans
// accrue; in every other case the current amount is kept as is.
func CalculateFine(status string, finePaid bool, dueDate, today time.Time, dailyRate, current decimal.Decimal) decimal.Decimal {
	if status != StatusOverdue || finePaid {
		return current
	}
	days := DaysBetween(dueDate, today)
	if days < 0 {
		days = 0
	}
	return dailyRate.Mul(decimal.NewFromInt(int64(days))).Round(2)
}

// Refresh re-derives status and fine as of today and reports whether
// anything changed.
func (l *Loan) Refresh(today time.Time, dailyRate decimal.Decimal) bool {
	status := DeriveStatus(l.Status, l.ReturnDate, l.DueDate, today)
	fine := CalculateFine(status, l.FinePaid, l.DueDate, today, dailyRate, l.FineAmount)
	changed := status != l.Status || !fine.Equal(l.FineAmount)
	l.Status = status
	l.FineAmount = fine
	return changed
}

// DaysOverdue returns how many days past due the loan is as of today.
func (l *Loan) DaysOverdue(today time.Time) int {
	end := today
	if l.ReturnDate != nil {
		end = *l.ReturnDate
	}
	if d := DaysBetween(l.DueDate, end); d > 0 {
		return d
	}
	return 0
}

// MarkReturned closes an outstanding loan. The caller refreshes first so an
// overdue fine is settled as of the return day.
func (l *Loan) MarkReturned(today time.Time, condition, notes string, finePaid bool) error {
	if !IsOutstanding(l.Status) {
		return ErrLoanNotActive
	}
	if condition == "" {
		condition = ConditionGood
	}
	if !ValidCondition(condition) {
		return Invalid("unknown return condition %q", condition)
	}
	returned := DateOf(today)
	l.ReturnDate = &returned
	l.Status = StatusReturned
	l.Condition = condition
	if notes != "" {
		l.Notes = notes
	}
	if finePaid {
		l.FinePaid = true
	}
	return nil
}

// Cancel voids an Active loan. Overdue loans must be returned instead.
func (l *Loan) Cancel(notes string) error {
	if l.Status != StatusActive {
		return ErrLoanNotActive
	}
	l.Status = StatusCancelled
	if notes != "" {
		l.Notes = notes
	}
	return nil
}

// PayFine marks an outstanding fine as settled. The amount is frozen from then on.
func (l *Loan) PayFine() error {
	if l.FinePaid {
		return Invalid("fine already paid")
	}
	if !l.FineAmount.IsPositive() {
		return Invalid("no fine is owed on this loan")
	}
	l.FinePaid = true
	return nil
}

// OutstandingFine is the unpaid part of the fine.
func (l *Loan) OutstandingFine() decimal.Decimal {
	if l.FinePaid {
		return decimal.Zero
	}
	return l.FineAmount
}
