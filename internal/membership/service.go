// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"

	"libradesk/internal/domain"
	"libradesk/internal/store"
)

// Service defines the interface for the membership service.
type Service interface {
	RegisterMember(ctx context.Context, in MemberInput) (*MemberDetail, error)
	GetMember(ctx context.Context, id uuid.UUID) (*MemberDetail, error)
	UpdateMember(ctx context.Context, id uuid.UUID, in MemberInput) (*MemberDetail, error)
	DeactivateMember(ctx context.Context, id uuid.UUID) (*MemberDetail, error)
	DeleteMember(ctx context.Context, id uuid.UUID) error
	ListMembers(ctx context.Context, filter store.MemberFilter) ([]domain.Member, error)
}

// LoanRefresher brings a member's or book's outstanding loans up to date so
// status and fines are current before they are shown.
type LoanRefresher interface {
	RefreshLoans(ctx context.Context, filter store.LoanFilter) (int, error)
}
