// internal/catalog/implementation.go
package catalog

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

// service implements the Service interface.
type service struct {
	store  *store.Store
	loans  LoanRefresher
	logger *slog.Logger
	tracer trace.Tracer
}

// NewService creates a new catalog service instance.
func NewService(st *store.Store, loans LoanRefresher, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		store:  st,
		loans:  loans,
		logger: logger.With("component", "catalog"),
		tracer: otel.Tracer("libradesk/catalog"),
	}
}

// AddBook catalogues a new title with all its copies on the shelf.
func (s *service) AddBook(ctx context.Context, in BookInput) (*BookDetail, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.add_book")
	defer span.End()

	book := &domain.Book{ID: uuid.New(), Quantity: 1}
	in.apply(book)
	if in.Quantity != nil {
		book.Quantity = *in.Quantity
	}
	if err := book.Validate(); err != nil {
		return nil, err
	}
	book.AvailableCopies = book.Quantity

	if err := s.store.InTx(ctx, "add_book", func(q *store.Queries) error {
		return q.InsertBook(ctx, book)
	}); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("book.id", book.ID.String()))
	s.logger.InfoContext(ctx, "book added", "book_id", book.ID, "isbn", book.ISBN, "title", book.Title)
	return &BookDetail{Book: *book, GenreName: domain.GenreName(book.Genre), LoanHistory: []domain.LoanSummary{}}, nil
}

// GetBook returns a book with its last loans, outstanding ones refreshed as
// of today.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*BookDetail, error) {
	r := s.store.Reader()
	book, err := r.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.loans.RefreshLoans(ctx, store.LoanFilter{BookID: id}); err != nil {
		return nil, err
	}
	history, err := r.ListLoans(ctx, store.LoanFilter{BookID: id, Limit: historyLimit})
	if err != nil {
		return nil, err
	}
	return &BookDetail{Book: *book, GenreName: domain.GenreName(book.Genre), LoanHistory: history}, nil
}

// UpdateBook edits a book. Raising the quantity puts the new copies on the
// shelf; lowering it caps available copies at the new total.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*BookDetail, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_book",
		trace.WithAttributes(attribute.String("book.id", id.String())),
	)
	defer span.End()

	var updated *domain.Book
	err := s.store.InTx(ctx, "update_book", func(q *store.Queries) error {
		book, err := q.LockBook(ctx, id)
		if err != nil {
			return err
		}
		in.apply(book)
		if in.Quantity != nil {
			if *in.Quantity < 0 {
				return domain.Invalid("quantity cannot be negative")
			}
			book.ChangeQuantity(*in.Quantity)
		}
		if err := book.Validate(); err != nil {
			return err
		}
		if err := q.UpdateBook(ctx, book); err != nil {
			return err
		}
		updated = book
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "book updated", "book_id", id, "quantity", updated.Quantity, "available", updated.AvailableCopies)
	return s.GetBook(ctx, id)
}

// DeleteBook removes a book and its loans. Members holding one of its
// copies get their borrowing slot back in the same transaction.
func (s *service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete_book",
		trace.WithAttributes(attribute.String("book.id", id.String())),
	)
	defer span.End()

	released := 0
	err := s.store.InTx(ctx, "delete_book", func(q *store.Queries) error {
		if _, err := q.LockBook(ctx, id); err != nil {
			return err
		}
		loans, err := q.ListLoans(ctx, store.LoanFilter{BookID: id, Outstanding: true})
		if err != nil {
			return err
		}
		for _, l := range loans {
			member, err := q.LockMember(ctx, l.MemberID)
			if err != nil {
				return err
			}
			member.Release()
			if err := q.UpdateMember(ctx, member); err != nil {
				return err
			}
			released++
		}
		return q.DeleteBook(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "book deleted", "book_id", id, "members_released", released)
	return nil
}

// Search returns one page of matching books ordered by title.
func (s *service) Search(ctx context.Context, filter store.BookFilter) (*SearchResult, error) {
	if filter.Genre != "" && !domain.ValidGenre(filter.Genre) {
		return nil, domain.Invalid("unknown genre %q", filter.Genre)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > store.MaxPageSize {
		filter.PageSize = store.DefaultPageSize
	}

	books, total, err := s.store.Reader().SearchBooks(ctx, filter)
	if err != nil {
		return nil, err
	}
	pages := (total + filter.PageSize - 1) / filter.PageSize
	return &SearchResult{Books: books, Total: total, Page: filter.Page, PageSize: filter.PageSize, Pages: pages}, nil
}

// Availability lists the copies on loan and when the next one is due back.
func (s *service) Availability(ctx context.Context, id uuid.UUID) (*Availability, error) {
	r := s.store.Reader()
	book, err := r.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.loans.RefreshLoans(ctx, store.LoanFilter{BookID: id}); err != nil {
		return nil, err
	}
	loans, err := r.ListLoans(ctx, store.LoanFilter{BookID: id, Outstanding: true})
	if err != nil {
		return nil, err
	}

	a := &Availability{
		BookID:           book.ID.String(),
		Title:            book.Title,
		Quantity:         book.Quantity,
		AvailableCopies:  book.AvailableCopies,
		Available:        book.IsAvailable(),
		OutstandingLoans: loans,
	}
	for _, l := range loans {
		if a.NextDueDate == nil || l.DueDate.Before(*a.NextDueDate) {
			due := l.DueDate
			a.NextDueDate = &due
		}
	}
	return a, nil
}
