package mfa

import (
	"bytes"
	"context"
	"encoding/base32"
	"fmt"
	"image/png"
	"log/slog"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"camp-auth/backend/internal/audit"
	auditdomain "camp-auth/backend/internal/audit/domain"
)

const (
	totpSecretSize = 20
	totpPeriod     = 30
	totpSkew       = 1
	qrSize         = 256
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Provisioning is the material a participant needs to enroll an authenticator app.
type Provisioning struct {
	URI     string
	QRCode  []byte // PNG
	Created bool   // false when an existing secret was returned
}

func (s *Service) totpKey(account string, secret []byte) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      s.opts.TOTPIssuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Secret:      secret,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
}

// ProvisionTOTP returns the provisioning URI and QR code for email. A secret is created and
// stored only when the account has none; otherwise the stored one is returned unchanged.
func (s *Service) ProvisionTOTP(ctx context.Context, email string) (*Provisioning, error) {
	addr, err := normalize(email)
	if err != nil {
		return nil, err
	}
	fresh, err := s.totpKey(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	stored, created, err := s.participants.EnsureTOTPSecret(ctx, addr, fresh.Secret())
	if err != nil {
		return nil, err
	}
	key := fresh
	if !created {
		raw, err := secretEncoding.DecodeString(stored)
		if err != nil {
			return nil, fmt.Errorf("stored totp secret for %q: %w", addr, err)
		}
		if key, err = s.totpKey(addr, raw); err != nil {
			return nil, err
		}
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}

	meta := map[string]string{"created": "false"}
	if created {
		meta["created"] = "true"
	}
	s.audit.LogEvent(ctx, audit.Event{
		Action:        auditdomain.ActionTOTPProvisioned,
		PrincipalKind: principalKind,
		PrincipalID:   addr,
		Metadata:      meta,
	})
	return &Provisioning{URI: key.URL(), QRCode: buf.Bytes(), Created: created}, nil
}

// VerifyTOTP checks code against the participant's secret at the service clock, accepting one
// time step of skew either way. False when no secret is provisioned.
func (s *Service) VerifyTOTP(ctx context.Context, email, code string) (bool, error) {
	addr, err := normalize(email)
	if err != nil {
		return false, nil
	}
	p, err := s.participants.GetByEmail(ctx, addr)
	if err != nil {
		return false, err
	}

	reason := ""
	ok := false
	if !p.HasTOTP() {
		reason = "no secret"
	} else {
		ok, err = totp.ValidateCustom(code, p.TOTPSecret, s.nowF(), totp.ValidateOpts{
			Period:    totpPeriod,
			Skew:      totpSkew,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		switch {
		case err != nil:
			s.log.Debug("totp validation error", slog.String("email", addr), slog.Any("error", err))
			ok, reason = false, "malformed code"
		case !ok:
			reason = "mismatch"
		}
	}

	s.metrics.CodeVerification(ctx, "totp", ok)
	ev := audit.Event{Action: auditdomain.ActionTOTPVerified, PrincipalKind: principalKind, PrincipalID: addr}
	if !ok {
		ev.Action, ev.Reason = auditdomain.ActionTOTPRejected, reason
	}
	s.audit.LogEvent(ctx, ev)
	return ok, nil
}

// ResetTOTP removes the participant's secret so the next provisioning creates a new one.
// Operator-only.
func (s *Service) ResetTOTP(ctx context.Context, email string) error {
	addr, err := normalize(email)
	if err != nil {
		return err
	}
	if err := s.participants.ClearTOTPSecret(ctx, addr); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Action:        auditdomain.ActionTOTPReset,
		PrincipalKind: principalKind,
		PrincipalID:   addr,
	})
	return nil
}
