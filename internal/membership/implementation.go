// internal/membership/implementation.go
package membership

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/domain"
	"libradesk/internal/store"
)

const historyLimit = 10

// Options are the registration defaults.
type Options struct {
	DefaultMaxBooks int
	Clock           domain.Clock
}

// service implements the Service interface.
type service struct {
	store  *store.Store
	loans  LoanRefresher
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// NewService creates a new membership service instance.
func NewService(st *store.Store, loans LoanRefresher, opts Options, logger *slog.Logger) Service {
	if opts.DefaultMaxBooks <= 0 {
		opts.DefaultMaxBooks = domain.DefaultBooksAllowed
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		store:  st,
		loans:  loans,
		opts:   opts,
		logger: logger.With("component", "membership"),
		tracer: otel.Tracer("libradesk/membership"),
	}
}

// RegisterMember creates a new active member.
func (s *service) RegisterMember(ctx context.Context, in MemberInput) (*MemberDetail, error) {
	ctx, span := s.tracer.Start(ctx, "membership.register")
	defer span.End()

	member := &domain.Member{
		ID:                  uuid.New(),
		MembershipStartDate: domain.DateOf(s.opts.Clock()),
		MaxBooksAllowed:     s.opts.DefaultMaxBooks,
		IsActive:            true,
	}
	in.apply(member)
	if err := member.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.InTx(ctx, "register_member", func(q *store.Queries) error {
		return q.InsertMember(ctx, member)
	}); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("member.id", member.ID.String()))
	s.logger.InfoContext(ctx, "member registered", "member_id", member.ID, "membership_type", member.MembershipType)
	return detail(member, []domain.LoanSummary{}, []domain.LoanSummary{}), nil
}

// GetMember returns a member with current loans, refreshed as of today, and
// the last finished ones.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*MemberDetail, error) {
	r := s.store.Reader()
	member, err := r.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.loans.RefreshLoans(ctx, store.LoanFilter{MemberID: id}); err != nil {
		return nil, err
	}
	current, err := r.ListLoans(ctx, store.LoanFilter{MemberID: id, Outstanding: true})
	if err != nil {
		return nil, err
	}
	history, err := r.ListLoans(ctx, store.LoanFilter{MemberID: id, Finished: true, Limit: historyLimit})
	if err != nil {
		return nil, err
	}
	return detail(member, current, history), nil
}

// UpdateMember edits a member. The borrowing limit may not drop below the
// books currently borrowed.
func (s *service) UpdateMember(ctx context.Context, id uuid.UUID, in MemberInput) (*MemberDetail, error) {
	ctx, span := s.tracer.Start(ctx, "membership.update",
		trace.WithAttributes(attribute.String("member.id", id.String())),
	)
	defer span.End()

	err := s.store.InTx(ctx, "update_member", func(q *store.Queries) error {
		member, err := q.LockMember(ctx, id)
		if err != nil {
			return err
		}
		in.apply(member)
		if err := member.Validate(); err != nil {
			return err
		}
		return q.UpdateMember(ctx, member)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member updated", "member_id", id)
	return s.GetMember(ctx, id)
}

// DeactivateMember stops a member from borrowing. Loans and history stay.
func (s *service) DeactivateMember(ctx context.Context, id uuid.UUID) (*MemberDetail, error) {
	ctx, span := s.tracer.Start(ctx, "membership.deactivate",
		trace.WithAttributes(attribute.String("member.id", id.String())),
	)
	defer span.End()

	err := s.store.InTx(ctx, "deactivate_member", func(q *store.Queries) error {
		member, err := q.LockMember(ctx, id)
		if err != nil {
			return err
		}
		if !member.IsActive {
			return nil
		}
		member.IsActive = false
		return q.UpdateMember(ctx, member)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member deactivated", "member_id", id)
	return s.GetMember(ctx, id)
}

// DeleteMember removes a member and their loans. Copies they still hold go
// back on the shelf in the same transaction.
func (s *service) DeleteMember(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "membership.delete",
		trace.WithAttributes(attribute.String("member.id", id.String())),
	)
	defer span.End()

	restocked := 0
	err := s.store.InTx(ctx, "delete_member", func(q *store.Queries) error {
		if _, err := q.LockMember(ctx, id); err != nil {
			return err
		}
		loans, err := q.ListLoans(ctx, store.LoanFilter{MemberID: id, Outstanding: true})
		if err != nil {
			return err
		}
		for _, l := range loans {
			book, err := q.LockBook(ctx, l.BookID)
			if err != nil {
				return err
			}
			book.Restock()
			if err := q.UpdateBook(ctx, book); err != nil {
				return err
			}
			restocked++
		}
		return q.DeleteMember(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "member deleted", "member_id", id, "copies_restocked", restocked)
	return nil
}

// ListMembers returns members ordered by last then first name.
func (s *service) ListMembers(ctx context.Context, filter store.MemberFilter) ([]domain.Member, error) {
	if filter.MembershipType != "" && !domain.ValidMembership(filter.MembershipType) {
		return nil, domain.Invalid("unknown membership type %q", filter.MembershipType)
	}
	return s.store.Reader().ListMembers(ctx, filter)
}

func detail(m *domain.Member, current, history []domain.LoanSummary) *MemberDetail {
	return &MemberDetail{
		Member:         *m,
		FullName:       m.FullName(),
		MembershipName: domain.MembershipName(m.MembershipType),
		CanBorrow:      m.CanBorrow(),
		CurrentLoans:   current,
		LoanHistory:    history,
	}
}
