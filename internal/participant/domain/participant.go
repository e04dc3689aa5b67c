package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Participant is a general participant account, keyed by normalized email.
type Participant struct {
	Email      string    `json:"email"`
	TOTPSecret string    `json:"totpSecret,omitempty"` // base32; set at most once unless reset by an operator
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lower-cases an email so it can be used as a record key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail reports whether email (already normalized) is acceptable as a participant id.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !emailRE.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

// HasTOTP reports whether a TOTP secret has been provisioned.
func (p *Participant) HasTOTP() bool {
	return p != nil && p.TOTPSecret != ""
}

// Validate validates the participant for persistence. Returns an error describing the first validation failure.
func (p *Participant) Validate() error {
	if p.Email == "" {
		return errors.New("email is required")
	}
	return nil
}
