package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const codeDigits = 6

// codeSpace is 10^codeDigits. rand.Int draws below it without modulo bias.
var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a zero-padded 6-digit email code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// HashCode is the stored form of an email code: hex SHA-256.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// CodeMatches compares code against a stored hash in constant time. An empty code never matches.
func CodeMatches(code, storedHash string) bool {
	if code == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashCode(code)), []byte(storedHash)) == 1
}
