package domain

import "testing"

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  A@B.com "); got != "a@b.com" {
		t.Errorf("NormalizeEmail = %q, want a@b.com", got)
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		ok    bool
	}{
		{"a@b.com", true},
		{"first.last+camp@example.org", true},
		{"", false},
		{"not-an-email", false},
		{"a@b", false},
	}
	for _, tt := range tests {
		err := ValidateEmail(tt.email)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateEmail(%q) err = %v, want ok=%v", tt.email, err, tt.ok)
		}
	}
}

func TestParticipant_Validate(t *testing.T) {
	if err := (&Participant{}).Validate(); err == nil {
		t.Error("Validate should reject missing email")
	}
	if err := (&Participant{Email: "a@b.com"}).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParticipant_HasTOTP(t *testing.T) {
	var nilP *Participant
	if nilP.HasTOTP() {
		t.Error("nil participant has no TOTP")
	}
	if (&Participant{Email: "a@b.com"}).HasTOTP() {
		t.Error("participant without secret has no TOTP")
	}
	if !(&Participant{Email: "a@b.com", TOTPSecret: "JBSWY3DPEHPK3PXP"}).HasTOTP() {
		t.Error("participant with secret has TOTP")
	}
}
