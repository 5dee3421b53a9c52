package membership

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/circulation"
	"libradesk/internal/domain"
	"libradesk/internal/store"
	"libradesk/pkg/eventstore"
)

var today = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

func newService(t *testing.T) (Service, *store.Store) {
	t.Helper()
	svc, _, st := newServiceAt(t, func() time.Time { return today })
	return svc, st
}

func newServiceAt(t *testing.T, clock domain.Clock) (Service, circulation.Service, *store.Store) {
	t.Helper()
	st := store.OpenTestStore(t)
	loans := circulation.NewService(st, eventstore.NewEventStore(st.Driver(), ""), circulation.Options{Clock: clock}, nil)
	return NewService(st, loans, Options{DefaultMaxBooks: 3, Clock: clock}, nil), loans, st
}

func input(email string) MemberInput {
	return MemberInput{FirstName: "Grace", LastName: "Hopper", Email: email, MembershipType: domain.MembershipPremium}
}

// borrow lends a fresh one-copy book to the member directly through the store.
func borrow(t *testing.T, st *store.Store, memberID uuid.UUID, isbn string) *domain.Book {
	t.Helper()
	ctx := context.Background()
	b := &domain.Book{ID: uuid.New(), ISBN: isbn, Title: "COBOL " + isbn, Author: "Sammet", Genre: domain.GenreTechnology, Quantity: 1, AvailableCopies: 1}
	require.NoError(t, st.InTx(ctx, "borrow", func(q *store.Queries) error {
		if err := q.InsertBook(ctx, b); err != nil {
			return err
		}
		m, err := q.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if err := b.Lend(); err != nil {
			return err
		}
		if err := m.Borrow(); err != nil {
			return err
		}
		if err := q.UpdateBook(ctx, b); err != nil {
			return err
		}
		if err := q.UpdateMember(ctx, m); err != nil {
			return err
		}
		loan, err := domain.NewLoan(b.ID, m.ID, today, nil, 0)
		if err != nil {
			return err
		}
		return q.InsertLoan(ctx, loan)
	}))
	return b
}

func TestRegisterMember(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	m, err := svc.RegisterMember(ctx, input("Grace@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", m.Email)
	assert.Equal(t, 3, m.MaxBooksAllowed)
	assert.True(t, m.IsActive)
	assert.True(t, m.CanBorrow)
	assert.Equal(t, "Premium", m.MembershipName)
	assert.Equal(t, "Grace Hopper", m.FullName)
	assert.Equal(t, "2026-03-01", m.MembershipStartDate.Format(time.DateOnly))

	_, err = svc.RegisterMember(ctx, input("grace@example.com"))
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	tests := []struct {
		name string
		in   MemberInput
	}{
		{"bad email", input("not-an-email")},
		{"missing name", MemberInput{Email: "x@example.com"}},
		{"unknown class", MemberInput{FirstName: "A", LastName: "B", Email: "ab@example.com", MembershipType: "VIP"}},
		{"limit too high", MemberInput{FirstName: "A", LastName: "B", Email: "ab@example.com", MaxBooksAllowed: ptr(21)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterMember(ctx, tt.in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestUpdateMemberLimit(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	m, err := svc.RegisterMember(ctx, input("grace@example.com"))
	require.NoError(t, err)
	borrow(t, st, m.ID, "1000000000001")
	borrow(t, st, m.ID, "1000000000002")

	in := input("grace@example.com")
	in.MaxBooksAllowed = ptr(1)
	_, err = svc.UpdateMember(ctx, m.ID, in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in.MaxBooksAllowed = ptr(2)
	got, err := svc.UpdateMember(ctx, m.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxBooksAllowed)
	assert.False(t, got.CanBorrow)
	assert.Len(t, got.CurrentLoans, 2)

	_, err = svc.UpdateMember(ctx, uuid.New(), in)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeactivateMember(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	m, err := svc.RegisterMember(ctx, input("grace@example.com"))
	require.NoError(t, err)

	got, err := svc.DeactivateMember(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.False(t, got.CanBorrow)

	again, err := svc.DeactivateMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Version, again.Version)

	active := true
	list, err := svc.ListMembers(ctx, store.MemberFilter{Active: &active})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteMemberRestocksBooks(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	m, err := svc.RegisterMember(ctx, input("grace@example.com"))
	require.NoError(t, err)
	b := borrow(t, st, m.ID, "1000000000001")

	require.NoError(t, svc.DeleteMember(ctx, m.ID))

	got, err := st.Reader().GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)
	loans, err := st.Reader().ListLoans(ctx, store.LoanFilter{BookID: b.ID})
	require.NoError(t, err)
	assert.Empty(t, loans)

	assert.ErrorIs(t, svc.DeleteMember(ctx, m.ID), domain.ErrNotFound)
}

func TestListMembers(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := svc.RegisterMember(ctx, input(email))
		require.NoError(t, err)
	}
	student := input("c@example.com")
	student.MembershipType = domain.MembershipStudent
	_, err := svc.RegisterMember(ctx, student)
	require.NoError(t, err)

	all, err := svc.ListMembers(ctx, store.MemberFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	students, err := svc.ListMembers(ctx, store.MemberFilter{MembershipType: domain.MembershipStudent})
	require.NoError(t, err)
	assert.Len(t, students, 1)

	_, err = svc.ListMembers(ctx, store.MemberFilter{MembershipType: "VIP"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func ptr[T any](v T) *T { return &v }

func TestGetMemberRefreshesOverdueLoans(t *testing.T) {
	now := today
	svc, loans, st := newServiceAt(t, func() time.Time { return now })
	ctx := context.Background()

	m, err := svc.RegisterMember(ctx, input("grace@example.com"))
	require.NoError(t, err)
	b := &domain.Book{ID: uuid.New(), ISBN: "9780000000001", Title: "Compilers", Author: "Aho", Genre: domain.GenreTechnology, Quantity: 1, AvailableCopies: 1}
	require.NoError(t, st.InTx(ctx, "book", func(q *store.Queries) error { return q.InsertBook(ctx, b) }))
	loan, err := loans.CreateLoan(ctx, circulation.CreateLoanRequest{BookID: b.ID, MemberID: m.ID})
	require.NoError(t, err)

	now = now.AddDate(0, 0, 20)

	got, err := svc.GetMember(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, got.CurrentLoans, 1)
	assert.Equal(t, loan.ID, got.CurrentLoans[0].ID)
	assert.Equal(t, domain.StatusOverdue, got.CurrentLoans[0].Status)
	assert.Equal(t, "6.00", got.CurrentLoans[0].FineAmount.StringFixed(2))

	stored, err := st.Reader().GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, stored.Status)
}
