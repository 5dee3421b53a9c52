package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libradesk/internal/domain"
)

const bookColumns = `id, isbn, title, author, genre, published_date, publisher, description,
	quantity, available_copies, version, created_at, updated_at`

// BookFilter narrows a catalog search. Page is 1-based.
type BookFilter struct {
	Query    string
	Genre    string
	Author   string
	Page     int
	PageSize int
}

// InsertBook adds a new title. A taken ISBN yields domain.ErrDuplicateISBN.
func (q *Queries) InsertBook(ctx context.Context, b *domain.Book) error {
	if err := q.normalizeBook(b); err != nil {
		return err
	}
	ts := now()
	b.Version = 1
	b.CreatedAt, b.UpdatedAt = ts, ts

	_, err := q.exec(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ISBN, b.Title, b.Author, b.Genre, b.PublishedDate, b.Publisher, b.Description,
		b.Quantity, b.AvailableCopies, b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if err = classify(err); errors.Is(err, errUniqueViolation) {
			return fmt.Errorf("isbn %s: %w", b.ISBN, domain.ErrDuplicateISBN)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// GetBook loads a book by id.
func (q *Queries) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	return q.getBook(ctx, id, "")
}

// LockBook loads a book and, on PostgreSQL, holds its row lock until the
// transaction ends.
func (q *Queries) LockBook(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	return q.getBook(ctx, id, q.forUpdate())
}

func (q *Queries) getBook(ctx context.Context, id uuid.UUID, suffix string) (*domain.Book, error) {
	var b domain.Book
	if err := q.get(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE id = ?`+suffix, id); err != nil {
		return nil, notFound(err, "book", id)
	}
	return &b, nil
}

// UpdateBook persists every column of b guarded by its version. The counter
// bounds are checked first; available copies above quantity are capped.
func (q *Queries) UpdateBook(ctx context.Context, b *domain.Book) error {
	if err := q.normalizeBook(b); err != nil {
		return err
	}
	b.UpdatedAt = now()

	n, err := q.exec(ctx, `
		UPDATE books
		SET isbn = ?, title = ?, author = ?, genre = ?, published_date = ?, publisher = ?, description = ?,
		    quantity = ?, available_copies = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		b.ISBN, b.Title, b.Author, b.Genre, b.PublishedDate, b.Publisher, b.Description,
		b.Quantity, b.AvailableCopies, b.UpdatedAt, b.ID, b.Version,
	)
	if err != nil {
		if err = classify(err); errors.Is(err, errUniqueViolation) {
			return fmt.Errorf("isbn %s: %w", b.ISBN, domain.ErrDuplicateISBN)
		}
		return fmt.Errorf("update book %s: %w", b.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update book %s at version %d: %w", b.ID, b.Version, ErrConcurrencyConflict)
	}
	b.Version++
	return nil
}

func (q *Queries) normalizeBook(b *domain.Book) error {
	clamped, err := b.Normalize()
	if err != nil {
		q.store.logger.Error("book counter invariant violated", "book_id", b.ID, "error", err)
		return err
	}
	if clamped {
		q.store.logger.Warn("available copies capped at quantity", "book_id", b.ID, "quantity", b.Quantity)
	}
	return nil
}

// DeleteBook removes a book; its loans go with it.
func (q *Queries) DeleteBook(ctx context.Context, id uuid.UUID) error {
	n, err := q.exec(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book %s: %w", id, classify(err))
	}
	if n == 0 {
		return fmt.Errorf("book %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SearchBooks returns one page of books ordered by title and the total match count.
func (q *Queries) SearchBooks(ctx context.Context, f BookFilter) ([]domain.Book, int, error) {
	ds := q.store.dialect.From("books")

	if f.Query != "" {
		like := "%" + f.Query + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("title").ILike(like),
			goqu.C("description").ILike(like),
			goqu.C("isbn").ILike(like),
		))
	}
	if f.Genre != "" {
		ds = ds.Where(goqu.C("genre").Eq(f.Genre))
	}
	if f.Author != "" {
		ds = ds.Where(goqu.C("author").ILike("%" + f.Author + "%"))
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT("*")).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build book count: %w", err)
	}
	var total int
	if err := q.get(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", classify(err))
	}

	page, size := normalizePage(f.Page, f.PageSize)
	query, args, err := ds.
		Select(goqu.L(bookColumns)).
		Order(goqu.I("title").Asc(), goqu.I("id").Asc()).
		Limit(uint(size)).
		Offset(uint((page - 1) * size)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build book search: %w", err)
	}

	books := []domain.Book{}
	if err := q.sel(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("search books: %w", classify(err))
	}
	return books, total, nil
}

// CountBooks returns the number of catalogued titles.
func (q *Queries) CountBooks(ctx context.Context) (int, error) {
	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM books`); err != nil {
		return 0, fmt.Errorf("count books: %w", classify(err))
	}
	return n, nil
}

// Catalog page lengths.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return page, size
}

// RecentBooks returns the n most recently catalogued books.
func (q *Queries) RecentBooks(ctx context.Context, n int) ([]domain.Book, error) {
	books := []domain.Book{}
	if err := q.sel(ctx, &books, `SELECT `+bookColumns+` FROM books ORDER BY created_at DESC LIMIT ?`, n); err != nil {
		return nil, fmt.Errorf("recent books: %w", classify(err))
	}
	return books, nil
}
