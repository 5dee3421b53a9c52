package circulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"libradesk/internal/domain"
	"libradesk/internal/store"
	"libradesk/pkg/eventstore"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, days)
}

type fixture struct {
	svc   Service
	store *store.Store
	clock *testClock
	seq   atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.OpenTestStore(t)
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
	svc := NewService(st, eventstore.NewEventStore(st.Driver(), ""), Options{Clock: clock.Now}, nil)
	return &fixture{svc: svc, store: st, clock: clock}
}

func (f *fixture) addBook(t testing.TB, qty int) *domain.Book {
	t.Helper()
	n := f.seq.Add(1)
	b := &domain.Book{
		ID:              uuid.New(),
		ISBN:            fmt.Sprintf("%013d", n),
		Title:           fmt.Sprintf("Book %d", n),
		Author:          "Le Guin",
		Genre:           domain.GenreFantasy,
		Quantity:        qty,
		AvailableCopies: qty,
	}
	require.NoError(t, f.store.InTx(context.Background(), "add_book", func(q *store.Queries) error {
		return q.InsertBook(context.Background(), b)
	}))
	return b
}

func (f *fixture) addMember(t testing.TB, max int) *domain.Member {
	t.Helper()
	n := f.seq.Add(1)
	m := &domain.Member{
		ID:                  uuid.New(),
		FirstName:           "Member",
		LastName:            fmt.Sprint(n),
		Email:               fmt.Sprintf("member%d@example.com", n),
		MembershipType:      domain.MembershipRegular,
		MembershipStartDate: domain.DateOf(f.clock.Now()),
		MaxBooksAllowed:     max,
		IsActive:            true,
	}
	require.NoError(t, f.store.InTx(context.Background(), "add_member", func(q *store.Queries) error {
		return q.InsertMember(context.Background(), m)
	}))
	return m
}

func (f *fixture) book(t testing.TB, id uuid.UUID) *domain.Book {
	t.Helper()
	b, err := f.store.Reader().GetBook(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) member(t testing.TB, id uuid.UUID) *domain.Member {
	t.Helper()
	m, err := f.store.Reader().GetMember(context.Background(), id)
	require.NoError(t, err)
	return m
}

func TestLoanLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 3)
	other := f.addBook(t, 1)
	member := f.addMember(t, 1)

	loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, loan.Status)
	assert.Equal(t, "2026-03-15", loan.DueDate.Format(time.DateOnly))
	assert.Equal(t, book.Title, loan.BookTitle)
	assert.Equal(t, 2, f.book(t, book.ID).AvailableCopies)
	assert.Equal(t, 1, f.member(t, member.ID).CurrentBooksBorrowed)

	_, err = f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: other.ID, MemberID: member.ID})
	assert.ErrorIs(t, err, domain.ErrMemberIneligible)
	assert.Equal(t, 1, f.book(t, other.ID).AvailableCopies)

	returned, err := f.svc.ReturnLoan(ctx, loan.ID, ReturnRequest{Condition: domain.ConditionMinor})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReturned, returned.Status)
	assert.Equal(t, domain.ConditionMinor, returned.Condition)
	assert.True(t, returned.FineAmount.IsZero())
	assert.Equal(t, 3, f.book(t, book.ID).AvailableCopies)
	assert.Equal(t, 0, f.member(t, member.ID).CurrentBooksBorrowed)

	_, err = f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: other.ID, MemberID: member.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, f.book(t, other.ID).AvailableCopies)
}

func TestCreateLoanRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 1)
	member := f.addMember(t, 3)

	tests := []struct {
		name string
		req  CreateLoanRequest
		want error
	}{
		{"unknown book", CreateLoanRequest{BookID: uuid.New(), MemberID: member.ID}, domain.ErrNotFound},
		{"unknown member", CreateLoanRequest{BookID: book.ID, MemberID: uuid.New()}, domain.ErrNotFound},
		{"due before loan date", CreateLoanRequest{BookID: book.ID, MemberID: member.ID, DueDate: ptr(f.clock.Now().AddDate(0, 0, -1))}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateLoan(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	inactive := f.addMember(t, 3)
	require.NoError(t, f.store.InTx(ctx, "deactivate", func(q *store.Queries) error {
		m, err := q.LockMember(ctx, inactive.ID)
		if err != nil {
			return err
		}
		m.IsActive = false
		return q.UpdateMember(ctx, m)
	}))
	_, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: inactive.ID})
	assert.ErrorIs(t, err, domain.ErrMemberIneligible)

	assert.Equal(t, 1, f.book(t, book.ID).AvailableCopies)
}

func TestCreateLoanDuplicateRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 2)
	member := f.addMember(t, 2)

	_, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID})
	require.NoError(t, err)

	_, err = f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID})
	require.ErrorIs(t, err, domain.ErrDuplicateLoan)

	assert.Equal(t, 1, f.book(t, book.ID).AvailableCopies)
	assert.Equal(t, 1, f.member(t, member.ID).CurrentBooksBorrowed)
	loans, err := f.store.Reader().ListLoans(ctx, store.LoanFilter{BookID: book.ID})
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

func TestConcurrentLoansOnLastCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 1)

	const n = 8
	members := make([]*domain.Member, n)
	for i := range members {
		members[i] = f.addMember(t, 1)
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		errs      = make(chan error, n)
	)
	for _, m := range members {
		wg.Add(1)
		go func(m *domain.Member) {
			defer wg.Done()
			_, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: m.ID})
			if err != nil {
				errs <- err
				return
			}
			succeeded.Add(1)
		}(m)
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), succeeded.Load())
	for err := range errs {
		assert.ErrorIs(t, err, domain.ErrBookUnavailable)
	}
	assert.Equal(t, 0, f.book(t, book.ID).AvailableCopies)

	borrowed := 0
	for _, m := range members {
		borrowed += f.member(t, m.ID).CurrentBooksBorrowed
	}
	assert.Equal(t, 1, borrowed)
}

func TestOverdueFine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 1)
	member := f.addMember(t, 1)

	loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID})
	require.NoError(t, err)

	f.clock.Advance(14)
	same, err := f.svc.RecomputeOverdueAndFine(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, same.Status, "due today is not overdue")

	f.clock.Advance(6)
	late, err := f.svc.RecomputeOverdueAndFine(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, late.Status)
	assert.Equal(t, 6, late.DaysOverdue)
	assert.True(t, late.FineAmount.Equal(decimal.RequireFromString("6.00")), "fine %s", late.FineAmount)

	again, err := f.svc.RecomputeOverdueAndFine(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, late.Version, again.Version, "a second recompute on the same day writes nothing")

	events, err := f.svc.LoanEvents(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventLoanRefreshed, events[1].EventType)

	f.clock.Advance(1)
	returned, err := f.svc.ReturnLoan(ctx, loan.ID, ReturnRequest{})
	require.NoError(t, err)
	assert.True(t, returned.FineAmount.Equal(decimal.NewFromInt(7)))
	assert.False(t, returned.FinePaid)
	assert.True(t, returned.OutstandingFine.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, 1, f.book(t, book.ID).AvailableCopies)

	f.clock.Advance(10)
	frozen, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, frozen.FineAmount.Equal(decimal.NewFromInt(7)), "a returned loan stops accruing")
}

func TestReturnTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 2)
	member := f.addMember(t, 2)

	loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID})
	require.NoError(t, err)
	_, err = f.svc.ReturnLoan(ctx, loan.ID, ReturnRequest{})
	require.NoError(t, err)

	_, err = f.svc.ReturnLoan(ctx, loan.ID, ReturnRequest{})
	assert.ErrorIs(t, err, domain.ErrLoanNotActive)
	assert.Equal(t, 2, f.book(t, book.ID).AvailableCopies)
	assert.Equal(t, 0, f.member(t, member.ID).CurrentBooksBorrowed)

	_, err = f.svc.ReturnLoan(ctx, uuid.New(), ReturnRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReturnRejectsUnknownCondition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 1)
	member := f.addMember(t, 1)

	loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID})
	require.NoError(t, err)

	_, err = f.svc.ReturnLoan(ctx, loan.ID, ReturnRequest{Condition: "SOGGY"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, f.book(t, book.ID).AvailableCopies)
}

func TestCancelLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 2)
	member := f.addMember(t, 2)

	loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID})
	require.NoError(t, err)
	cancelled, err := f.svc.CancelLoan(ctx, loan.ID, "entered by mistake")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, "entered by mistake", cancelled.Notes)
	assert.Equal(t, 2, f.book(t, book.ID).AvailableCopies)
	assert.Equal(t, 0, f.member(t, member.ID).CurrentBooksBorrowed)

	f.clock.Advance(1)
	late, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID})
	require.NoError(t, err)
	f.clock.Advance(20)
	_, err = f.svc.CancelLoan(ctx, late.ID, "")
	assert.ErrorIs(t, err, domain.ErrLoanNotActive, "overdue loans have to be returned")
	assert.Equal(t, 1, f.book(t, book.ID).AvailableCopies)
}

func TestPayFine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 1)
	member := f.addMember(t, 1)

	loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID})
	require.NoError(t, err)

	_, err = f.svc.PayFine(ctx, loan.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "nothing owed yet")

	f.clock.Advance(17)
	paid, err := f.svc.PayFine(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, paid.FinePaid)
	assert.True(t, paid.FineAmount.Equal(decimal.NewFromInt(3)))
	assert.True(t, paid.OutstandingFine.IsZero())

	f.clock.Advance(5)
	later, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, later.Status)
	assert.True(t, later.FineAmount.Equal(decimal.NewFromInt(3)), "a paid fine is frozen")

	_, err = f.svc.PayFine(ctx, loan.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBatchActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 3)

	var ids []uuid.UUID
	for range 2 {
		m := f.addMember(t, 1)
		loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: m.ID})
		require.NoError(t, err)
		ids = append(ids, loan.ID)
	}
	missing := uuid.New()

	f.clock.Advance(16)
	fines := f.svc.CalculateFines(ctx, append(ids, missing))
	assert.Equal(t, 2, fines.Succeeded)
	assert.Equal(t, 1, fines.Failed)
	assert.True(t, fines.TotalFines.Equal(decimal.NewFromInt(4)))
	require.Len(t, fines.Items, 3)
	assert.ErrorIs(t, fines.Items[2].Err(), domain.ErrNotFound)
	assert.False(t, fines.Items[2].OK)

	returned := f.svc.ReturnLoans(ctx, []uuid.UUID{ids[0], missing, ids[1], ids[0]}, ReturnRequest{FinePaid: true})
	assert.Equal(t, 2, returned.Succeeded)
	assert.Equal(t, 2, returned.Failed)
	assert.ErrorIs(t, returned.Items[1].Err(), domain.ErrNotFound)
	assert.ErrorIs(t, returned.Items[3].Err(), domain.ErrLoanNotActive)
	assert.True(t, returned.Items[2].Loan.FinePaid)
	assert.Equal(t, 3, f.book(t, book.ID).AvailableCopies)
}

func TestListLoansRefreshesStaleLoans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 3)
	early := f.addMember(t, 1)
	late := f.addMember(t, 1)

	overdue, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: early.ID})
	require.NoError(t, err)
	f.clock.Advance(10)
	_, err = f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: late.ID})
	require.NoError(t, err)

	f.clock.Advance(6)
	list, err := f.svc.ListLoans(ctx, store.LoanFilter{Status: domain.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, list.Loans, 1)
	assert.Equal(t, overdue.ID, list.Loans[0].ID)
	assert.Equal(t, 1, list.Overdue)
	assert.True(t, list.UnpaidFines.Equal(decimal.NewFromInt(2)))

	all, err := f.svc.ListLoans(ctx, store.LoanFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, 1, all.Active)
	assert.Equal(t, 1, all.Overdue)

	_, err = f.svc.ListLoans(ctx, store.LoanFilter{Status: "LATE"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUnpaidFinesIncludeReturnedLoans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 2)

	var ids []uuid.UUID
	for range 2 {
		m := f.addMember(t, 1)
		loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: m.ID})
		require.NoError(t, err)
		ids = append(ids, loan.ID)
	}

	f.clock.Advance(20)
	returned, err := f.svc.ReturnLoan(ctx, ids[0], ReturnRequest{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusReturned, returned.Status)
	require.True(t, returned.FineAmount.Equal(decimal.NewFromInt(6)))

	list, err := f.svc.ListLoans(ctx, store.LoanFilter{})
	require.NoError(t, err)
	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, list.UnpaidFines.Equal(decimal.NewFromInt(12)), "listed %s", list.UnpaidFines)
	assert.True(t, list.UnpaidFines.Equal(stats.UnpaidFines), "listed %s, stats %s", list.UnpaidFines, stats.UnpaidFines)

	closed, err := f.svc.ListLoans(ctx, store.LoanFilter{Status: domain.StatusReturned})
	require.NoError(t, err)
	assert.True(t, closed.UnpaidFines.Equal(decimal.NewFromInt(6)))

	_, err = f.svc.PayFine(ctx, ids[0])
	require.NoError(t, err)
	list, err = f.svc.ListLoans(ctx, store.LoanFilter{})
	require.NoError(t, err)
	assert.True(t, list.UnpaidFines.Equal(decimal.NewFromInt(6)))
}

func TestRefreshOutstandingAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 4)
	for range 3 {
		m := f.addMember(t, 1)
		_, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: m.ID})
		require.NoError(t, err)
	}

	n, err := f.svc.RefreshOutstanding(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(15)
	n, err = f.svc.RefreshOutstanding(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f.clock.Advance(1)
	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalBooks)
	assert.Equal(t, 3, stats.ActiveMembers)
	assert.Equal(t, 0, stats.ActiveLoans)
	assert.Equal(t, 3, stats.OverdueLoans)
	assert.True(t, stats.UnpaidFines.Equal(decimal.NewFromInt(6)), "unpaid %s", stats.UnpaidFines)
	assert.Len(t, stats.RecentBooks, 1)
	assert.Len(t, stats.RecentLoans, 3)
}

func TestLoanJournal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 1)
	member := f.addMember(t, 1)

	loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: book.ID, MemberID: member.ID, Notes: "desk 2"})
	require.NoError(t, err)
	returned, err := f.svc.ReturnLoan(ctx, loan.ID, ReturnRequest{Condition: domain.ConditionDamaged})
	require.NoError(t, err)

	events, err := f.svc.LoanEvents(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventLoanCreated, events[0].EventType)
	assert.Equal(t, EventLoanReturned, events[1].EventType)
	assert.Equal(t, returned.Version, events[1].Version, "journal version tracks the loan row")

	var created LoanCreatedEvent
	require.NoError(t, events[0].Decode(&created))
	assert.Equal(t, book.ID, created.BookID)
	assert.Equal(t, member.ID, created.MemberID)

	var ret LoanReturnedEvent
	require.NoError(t, events[1].Decode(&ret))
	assert.Equal(t, domain.ConditionDamaged, ret.Condition)

	_, err = f.svc.LoanEvents(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// Counters stay within bounds and agree with the outstanding loans whatever
// order loans are created, returned, cancelled and recomputed in.
func TestCountersStayConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		var books []*domain.Book
		for range rapid.IntRange(1, 3).Draw(rt, "books") {
			books = append(books, f.addBook(t, rapid.IntRange(1, 3).Draw(rt, "quantity")))
		}
		var members []*domain.Member
		for range rapid.IntRange(1, 3).Draw(rt, "members") {
			members = append(members, f.addMember(t, rapid.IntRange(1, 3).Draw(rt, "max")))
		}
		var loans []uuid.UUID

		expected := func(err error) {
			if err == nil {
				return
			}
			for _, ok := range []error{domain.ErrBookUnavailable, domain.ErrMemberIneligible, domain.ErrDuplicateLoan, domain.ErrLoanNotActive} {
				if errors.Is(err, ok) {
					return
				}
			}
			rt.Fatalf("unexpected error: %v", err)
		}

		rt.Repeat(map[string]func(*rapid.T){
			"create": func(rt *rapid.T) {
				b := rapid.SampledFrom(books).Draw(rt, "book")
				m := rapid.SampledFrom(members).Draw(rt, "member")
				loan, err := f.svc.CreateLoan(ctx, CreateLoanRequest{BookID: b.ID, MemberID: m.ID})
				expected(err)
				if err == nil {
					loans = append(loans, loan.ID)
				}
			},
			"return": func(rt *rapid.T) {
				if len(loans) == 0 {
					rt.Skip("no loans")
				}
				_, err := f.svc.ReturnLoan(ctx, rapid.SampledFrom(loans).Draw(rt, "loan"), ReturnRequest{})
				expected(err)
			},
			"cancel": func(rt *rapid.T) {
				if len(loans) == 0 {
					rt.Skip("no loans")
				}
				_, err := f.svc.CancelLoan(ctx, rapid.SampledFrom(loans).Draw(rt, "loan"), "")
				expected(err)
			},
			"recompute": func(rt *rapid.T) {
				if len(loans) == 0 {
					rt.Skip("no loans")
				}
				_, err := f.svc.RecomputeOverdueAndFine(ctx, rapid.SampledFrom(loans).Draw(rt, "loan"))
				expected(err)
			},
			"tick": func(rt *rapid.T) {
				f.clock.Advance(rapid.IntRange(1, 10).Draw(rt, "days"))
			},
			"": func(rt *rapid.T) {
				r := f.store.Reader()
				for _, b := range books {
					got, err := r.GetBook(ctx, b.ID)
					require.NoError(rt, err)
					out, err := r.ListLoans(ctx, store.LoanFilter{BookID: b.ID, Outstanding: true})
					require.NoError(rt, err)
					if got.AvailableCopies < 0 || got.AvailableCopies > got.Quantity {
						rt.Fatalf("book %s: available %d of %d", b.ID, got.AvailableCopies, got.Quantity)
					}
					if got.Quantity-got.AvailableCopies != len(out) {
						rt.Fatalf("book %s: %d copies out, %d outstanding loans", b.ID, got.Quantity-got.AvailableCopies, len(out))
					}
				}
				for _, m := range members {
					got, err := r.GetMember(ctx, m.ID)
					require.NoError(rt, err)
					out, err := r.ListLoans(ctx, store.LoanFilter{MemberID: m.ID, Outstanding: true})
					require.NoError(rt, err)
					if got.CurrentBooksBorrowed < 0 || got.CurrentBooksBorrowed > got.MaxBooksAllowed {
						rt.Fatalf("member %s: borrowed %d of %d", m.ID, got.CurrentBooksBorrowed, got.MaxBooksAllowed)
					}
					if got.CurrentBooksBorrowed != len(out) {
						rt.Fatalf("member %s: borrowed %d, %d outstanding loans", m.ID, got.CurrentBooksBorrowed, len(out))
					}
				}
			},
		})
	})
}

func ptr[T any](v T) *T { return &v }
