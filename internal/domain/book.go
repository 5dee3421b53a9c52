package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Genre codes as stored in the catalog.
const (
	GenreFiction    = "FIC"
	GenreNonFiction = "NON"
	GenreScience    = "SCI"
	GenreHistory    = "HIS"
	GenreBiography  = "BIO"
	GenreFantasy    = "FAN"
	GenreMystery    = "MYS"
	GenreRomance    = "ROM"
	GenreTechnology = "TEC"
	GenreArt        = "ART"
)

var genreNames = map[string]string{
	GenreFiction:    "Fiction",
	GenreNonFiction: "Non-Fiction",
	GenreScience:    "Science",
	GenreHistory:    "History",
	GenreBiography:  "Biography",
	GenreFantasy:    "Fantasy",
	GenreMystery:    "Mystery",
	GenreRomance:    "Romance",
	GenreTechnology: "Technology",
	GenreArt:        "Art",
}

// ValidGenre reports whether code is a known genre.
func ValidGenre(code string) bool {
	_, ok := genreNames[code]
	return ok
}

// GenreName returns the display name of a genre code.
func GenreName(code string) string {
	return genreNames[code]
}

// Book represents a catalogued title and its copy counters.
type Book struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	ISBN            string     `json:"isbn" db:"isbn"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	Genre           string     `json:"genre" db:"genre"`
	PublishedDate   *time.Time `json:"published_date,omitempty" db:"published_date"`
	Publisher       string     `json:"publisher" db:"publisher"`
	Description     string     `json:"description" db:"description"`
	Quantity        int        `json:"quantity" db:"quantity"`
	AvailableCopies int        `json:"available_copies" db:"available_copies"`
	Version         int        `json:"version" db:"version"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAvailable reports whether at least one copy can be lent.
func (b *Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

// Normalize enforces 0 <= available_copies <= quantity before a save.
// Available copies above quantity are capped (the legacy clamp) and reported
// through the returned flag; any negative counter is an InvariantError.
func (b *Book) Normalize() (clamped bool, err error) {
	if b.Quantity < 0 {
		return false, &InvariantError{Entity: "book", Field: "quantity", Value: b.Quantity, Min: 0, Max: b.Quantity}
	}
	if b.AvailableCopies < 0 {
		return false, &InvariantError{Entity: "book", Field: "available_copies", Value: b.AvailableCopies, Min: 0, Max: b.Quantity}
	}
	if b.AvailableCopies > b.Quantity {
		b.AvailableCopies = b.Quantity
		return true, nil
	}
	return false, nil
}

// Lend takes one copy out of circulation.
func (b *Book) Lend() error {
	if b.AvailableCopies <= 0 {
		return ErrBookUnavailable
	}
	b.AvailableCopies--
	return nil
}

// Restock puts one copy back, never exceeding quantity.
func (b *Book) Restock() {
	if b.AvailableCopies < b.Quantity {
		b.AvailableCopies++
	}
}

// ChangeQuantity applies a new total. Extra copies become available at once;
// a reduction relies on the clamp in Normalize.
func (b *Book) ChangeQuantity(quantity int) {
	if quantity > b.Quantity {
		b.AvailableCopies += quantity - b.Quantity
	}
	b.Quantity = quantity
}

// Validate checks user-editable fields.
func (b *Book) Validate() error {
	b.ISBN = strings.TrimSpace(b.ISBN)
	if n := len(b.ISBN); n != 10 && n != 13 {
		return Invalid("ISBN must be 10 or 13 characters long")
	}
	if strings.TrimSpace(b.Title) == "" {
		return Invalid("title is required")
	}
	if strings.TrimSpace(b.Author) == "" {
		return Invalid("author is required")
	}
	if b.Genre == "" {
		b.Genre = GenreFiction
	}
	if !ValidGenre(b.Genre) {
		return Invalid("unknown genre %q", b.Genre)
	}
	if b.Quantity < 0 {
		return Invalid("quantity cannot be negative")
	}
	return nil
}
