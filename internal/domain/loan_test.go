package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var today = time.Date(2026, 3, 20, 15, 4, 5, 0, time.UTC)

func TestNewLoanDefaultsDueDate(t *testing.T) {
	loan, err := NewLoan(uuid.New(), uuid.New(), today, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, loan.Status)
	assert.Equal(t, DateOf(today), loan.LoanDate)
	assert.Equal(t, loan.LoanDate.AddDate(0, 0, 14), loan.DueDate)
	assert.True(t, loan.FineAmount.IsZero())
}

func TestNewLoanRejectsPastDueDate(t *testing.T) {
	past := today.AddDate(0, 0, -1)
	_, err := NewLoan(uuid.New(), uuid.New(), today, &past, 14)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeriveStatus(t *testing.T) {
	due := DateOf(today)
	returned := DateOf(today.AddDate(0, 0, 3))

	tests := []struct {
		name       string
		current    string
		returnDate *time.Time
		due        time.Time
		want       string
	}{
		{"due today stays active", StatusActive, nil, due, StatusActive},
		{"past due becomes overdue", StatusActive, nil, due.AddDate(0, 0, -1), StatusOverdue},
		{"overdue with later due date goes back to active", StatusOverdue, nil, due.AddDate(0, 0, 5), StatusActive},
		{"return date wins over due date", StatusOverdue, &returned, due.AddDate(0, 0, -10), StatusReturned},
		{"returned is sticky", StatusReturned, nil, due.AddDate(0, 0, -10), StatusReturned},
		{"cancelled is sticky", StatusCancelled, nil, due.AddDate(0, 0, -10), StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.current, tt.returnDate, tt.due, today))
		})
	}
}

func TestRefreshSixDaysOverdue(t *testing.T) {
	loan := &Loan{Status: StatusActive, DueDate: DateOf(today).AddDate(0, 0, -6), FineAmount: decimal.Zero}

	changed := loan.Refresh(today, DefaultDailyRate)

	assert.True(t, changed)
	assert.Equal(t, StatusOverdue, loan.Status)
	assert.True(t, loan.FineAmount.Equal(decimal.RequireFromString("6.00")), "fine = %s", loan.FineAmount)
	assert.False(t, loan.Refresh(today, DefaultDailyRate), "second refresh on the same day is a no-op")
}

func TestCalculateFineFrozenOncePaid(t *testing.T) {
	due := DateOf(today).AddDate(0, 0, -4)
	fine := CalculateFine(StatusOverdue, true, due, today.AddDate(0, 0, 30), DefaultDailyRate, decimal.NewFromInt(4))
	assert.True(t, fine.Equal(decimal.NewFromInt(4)))
}

func TestFineIsMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		due := DateOf(today).AddDate(0, 0, -rapid.IntRange(0, 400).Draw(t, "dueOffset"))
		d1 := rapid.IntRange(1, 500).Draw(t, "d1")
		d2 := rapid.IntRange(d1, 1000).Draw(t, "d2")
		rate := decimal.NewFromInt(int64(rapid.IntRange(1, 500).Draw(t, "cents"))).Shift(-2)

		loan1 := &Loan{Status: StatusActive, DueDate: due, FineAmount: decimal.Zero}
		loan2 := &Loan{Status: StatusActive, DueDate: due, FineAmount: decimal.Zero}
		loan1.Refresh(due.AddDate(0, 0, d1), rate)
		loan2.Refresh(due.AddDate(0, 0, d2), rate)

		if loan1.FineAmount.GreaterThan(loan2.FineAmount) {
			t.Fatalf("fine(%d)=%s > fine(%d)=%s", d1, loan1.FineAmount, d2, loan2.FineAmount)
		}

		loan2.FinePaid = true
		frozen := loan2.FineAmount
		loan2.Refresh(due.AddDate(0, 0, d2+rapid.IntRange(1, 100).Draw(t, "later")), rate)
		if !loan2.FineAmount.Equal(frozen) {
			t.Fatalf("paid fine changed from %s to %s", frozen, loan2.FineAmount)
		}
	})
}

func TestMarkReturned(t *testing.T) {
	loan := &Loan{Status: StatusOverdue, DueDate: DateOf(today).AddDate(0, 0, -2), FineAmount: decimal.NewFromInt(2)}

	require.NoError(t, loan.MarkReturned(today, "", "spine cracked", true))

	assert.Equal(t, StatusReturned, loan.Status)
	assert.Equal(t, ConditionGood, loan.Condition)
	require.NotNil(t, loan.ReturnDate)
	assert.Equal(t, DateOf(today), *loan.ReturnDate)
	assert.True(t, loan.FinePaid)
	assert.True(t, loan.FineAmount.Equal(decimal.NewFromInt(2)), "fine amount untouched")

	assert.ErrorIs(t, loan.MarkReturned(today, "", "", false), ErrLoanNotActive)
}

func TestMarkReturnedRejectsUnknownCondition(t *testing.T) {
	loan := &Loan{Status: StatusActive}
	assert.ErrorIs(t, loan.MarkReturned(today, "SOGGY", "", false), ErrInvalidInput)
	assert.Equal(t, StatusActive, loan.Status)
}

func TestCancelOnlyFromActive(t *testing.T) {
	loan := &Loan{Status: StatusOverdue}
	assert.ErrorIs(t, loan.Cancel(""), ErrLoanNotActive)

	loan.Status = StatusActive
	require.NoError(t, loan.Cancel("entered by mistake"))
	assert.Equal(t, StatusCancelled, loan.Status)
	assert.Equal(t, "entered by mistake", loan.Notes)
}

func TestPayFine(t *testing.T) {
	loan := &Loan{Status: StatusReturned, FineAmount: decimal.Zero}
	assert.ErrorIs(t, loan.PayFine(), ErrInvalidInput)

	loan.FineAmount = decimal.NewFromInt(3)
	require.NoError(t, loan.PayFine())
	assert.True(t, loan.OutstandingFine().IsZero())
	assert.ErrorIs(t, loan.PayFine(), ErrInvalidInput)
}
