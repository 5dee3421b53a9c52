// internal/catalog/domain.go
package catalog

import (
	"time"

	"libradesk/internal/domain"
)

// BookInput carries the editable fields of a book.
type BookInput struct {
	ISBN          string     `json:"isbn"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	Genre         string     `json:"genre"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Publisher     string     `json:"publisher"`
	Description   string     `json:"description"`
	Quantity      *int       `json:"quantity,omitempty"`
}

func (in BookInput) apply(b *domain.Book) {
	b.ISBN = in.ISBN
	b.Title = in.Title
	b.Author = in.Author
	b.Genre = in.Genre
	b.PublishedDate = in.PublishedDate
	if b.PublishedDate != nil {
		d := domain.DateOf(*b.PublishedDate)
		b.PublishedDate = &d
	}
	b.Publisher = in.Publisher
	b.Description = in.Description
}

// BookDetail is a book with its most recent loans.
type BookDetail struct {
	domain.Book
	GenreName   string               `json:"genre_name"`
	LoanHistory []domain.LoanSummary `json:"loan_history"`
}

// Availability shows how many copies are on the shelf and who holds the rest.
type Availability struct {
	BookID           string               `json:"book_id"`
	Title            string               `json:"title"`
	Quantity         int                  `json:"quantity"`
	AvailableCopies  int                  `json:"available_copies"`
	Available        bool                 `json:"available"`
	NextDueDate      *time.Time           `json:"next_due_date,omitempty"`
	OutstandingLoans []domain.LoanSummary `json:"outstanding_loans"`
}

// SearchResult is one page of a catalog search.
type SearchResult struct {
	Books    []domain.Book `json:"books"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Pages    int           `json:"pages"`
}
