package ceremony

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPendingChallenge is returned when the owner has no live challenge for the ceremony:
	// none was issued, it was already consumed, it expired, or it belongs to the other ceremony.
	ErrNoPendingChallenge = errors.New("no pending challenge")
	// ErrAttestationInvalid is returned for any registration response that fails parsing,
	// cryptographic or policy checks.
	ErrAttestationInvalid = errors.New("attestation invalid")
	// ErrNoCredentials is returned when authentication begins for an admin without credentials.
	ErrNoCredentials = errors.New("no registered credentials")
	// ErrAssertionInvalid is returned for any authentication response that fails verification.
	ErrAssertionInvalid = errors.New("assertion invalid")
	// ErrPossibleCloneDetected is returned when a valid assertion reports a signature counter
	// that did not advance past the stored one.
	ErrPossibleCloneDetected = fmt.Errorf("%w: possible clone detected", ErrAssertionInvalid)
	// ErrInvalidAdminID is returned for an empty or oversized admin id.
	ErrInvalidAdminID = errors.New("invalid admin id")
)
