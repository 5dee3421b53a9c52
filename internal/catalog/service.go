// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"

	"libradesk/internal/store"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, in BookInput) (*BookDetail, error)
	GetBook(ctx context.Context, id uuid.UUID) (*BookDetail, error)
	UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*BookDetail, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, filter store.BookFilter) (*SearchResult, error)
	Availability(ctx context.Context, id uuid.UUID) (*Availability, error)
}

// LoanRefresher brings a member's or book's outstanding loans up to date so
// status and fines are current before they are shown.
type LoanRefresher interface {
	RefreshLoans(ctx context.Context, filter store.LoanFilter) (int, error)
}
