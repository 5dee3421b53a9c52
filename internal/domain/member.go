package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Membership classes.
const (
	MembershipRegular = "REG"
	MembershipPremium = "PRE"
	MembershipStudent = "STU"
	MembershipSenior  = "SEN"
)

const (
	MinBooksAllowed     = 1
	MaxBooksAllowed     = 20
	DefaultBooksAllowed = 5
)

var membershipNames = map[string]string{
	MembershipRegular: "Regular",
	MembershipPremium: "Premium",
	MembershipStudent: "Student",
	MembershipSenior:  "Senior",
}

// MembershipName returns the display name of a membership class.
func MembershipName(code string) string {
	return membershipNames[code]
}

// ValidMembership reports whether code is a known membership class.
func ValidMembership(code string) bool {
	_, ok := membershipNames[code]
	return ok
}

// Member represents a registered library member.
type Member struct {
	ID                   uuid.UUID  `json:"id" db:"id"`
	FirstName            string     `json:"first_name" db:"first_name"`
	LastName             string     `json:"last_name" db:"last_name"`
	Email                string     `json:"email" db:"email"`
	Phone                string     `json:"phone" db:"phone"`
	Address              string     `json:"address" db:"address"`
	MembershipType       string     `json:"membership_type" db:"membership_type"`
	MembershipStartDate  time.Time  `json:"membership_start_date" db:"membership_start_date"`
	MembershipEndDate    *time.Time `json:"membership_end_date,omitempty" db:"membership_end_date"`
	MaxBooksAllowed      int        `json:"max_books_allowed" db:"max_books_allowed"`
	CurrentBooksBorrowed int        `json:"current_books_borrowed" db:"current_books_borrowed"`
	IsActive             bool       `json:"is_active" db:"is_active"`
	Version              int        `json:"version" db:"version"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name.
func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// CanBorrow reports whether the member may start another loan.
func (m *Member) CanBorrow() bool {
	return m.IsActive && m.CurrentBooksBorrowed < m.MaxBooksAllowed
}

// Borrow counts one more book against the member's limit.
func (m *Member) Borrow() error {
	if !m.CanBorrow() {
		return ErrMemberIneligible
	}
	m.CurrentBooksBorrowed++
	return nil
}

// Release counts one book back, floored at zero.
func (m *Member) Release() {
	if m.CurrentBooksBorrowed > 0 {
		m.CurrentBooksBorrowed--
	}
}

// CheckCounters enforces 0 <= current_books_borrowed <= max_books_allowed.
func (m *Member) CheckCounters() error {
	if m.CurrentBooksBorrowed < 0 || m.CurrentBooksBorrowed > m.MaxBooksAllowed {
		return &InvariantError{
			Entity: "member",
			Field:  "current_books_borrowed",
			Value:  m.CurrentBooksBorrowed,
			Min:    0,
			Max:    m.MaxBooksAllowed,
		}
	}
	return nil
}

// Validate checks user-editable fields.
func (m *Member) Validate() error {
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	if strings.TrimSpace(m.FirstName) == "" || strings.TrimSpace(m.LastName) == "" {
		return Invalid("first and last name are required")
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return Invalid("email %q is not valid", m.Email)
	}
	if len(m.Phone) > 15 {
		return Invalid("phone must be at most 15 characters")
	}
	if m.MembershipType == "" {
		m.MembershipType = MembershipRegular
	}
	if !ValidMembership(m.MembershipType) {
		return Invalid("unknown membership type %q", m.MembershipType)
	}
	if m.MaxBooksAllowed < MinBooksAllowed || m.MaxBooksAllowed > MaxBooksAllowed {
		return Invalid("max_books_allowed must be between %d and %d", MinBooksAllowed, MaxBooksAllowed)
	}
	if m.MaxBooksAllowed < m.CurrentBooksBorrowed {
		return Invalid("max_books_allowed cannot be below the %d books currently borrowed", m.CurrentBooksBorrowed)
	}
	return nil
}
