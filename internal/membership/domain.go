// internal/membership/domain.go
package membership

import (
	"time"

	"libradesk/internal/domain"
)

// MemberInput carries the editable fields of a member.
type MemberInput struct {
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Email               string     `json:"email"`
	Phone               string     `json:"phone"`
	Address             string     `json:"address"`
	MembershipType      string     `json:"membership_type"`
	MembershipStartDate *time.Time `json:"membership_start_date,omitempty"`
	MembershipEndDate   *time.Time `json:"membership_end_date,omitempty"`
	MaxBooksAllowed     *int       `json:"max_books_allowed,omitempty"`
	IsActive            *bool      `json:"is_active,omitempty"`
}

func (in MemberInput) apply(m *domain.Member) {
	m.FirstName = in.FirstName
	m.LastName = in.LastName
	m.Email = in.Email
	m.Phone = in.Phone
	m.Address = in.Address
	m.MembershipType = in.MembershipType
	if in.MembershipStartDate != nil {
		m.MembershipStartDate = domain.DateOf(*in.MembershipStartDate)
	}
	m.MembershipEndDate = nil
	if in.MembershipEndDate != nil {
		end := domain.DateOf(*in.MembershipEndDate)
		m.MembershipEndDate = &end
	}
	if in.MaxBooksAllowed != nil {
		m.MaxBooksAllowed = *in.MaxBooksAllowed
	}
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
}

// MemberDetail is a member with their open loans and recent history.
type MemberDetail struct {
	domain.Member
	FullName       string               `json:"full_name"`
	MembershipName string               `json:"membership_name"`
	CanBorrow      bool                 `json:"can_borrow"`
	CurrentLoans   []domain.LoanSummary `json:"current_loans"`
	LoanHistory    []domain.LoanSummary `json:"loan_history"`
}
