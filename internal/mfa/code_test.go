package mfa

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	leadingZero := 0
	for i := 0; i < 500; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, codeDigits)
		require.Equal(t, -1, strings.IndexFunc(code, func(r rune) bool { return r < '0' || r > '9' }), code)
		if code[0] == '0' {
			leadingZero++
		}
		seen[code] = struct{}{}
	}
	// 500 draws from 10^6: a few repeats are possible, a stuck source is not.
	require.Greater(t, len(seen), 480)
	// Roughly a tenth start with '0'; none at all means the padding or range is wrong.
	require.Positive(t, leadingZero)
}

func TestCodeMatches(t *testing.T) {
	stored := HashCode("042137")
	require.Len(t, stored, 64)

	tests := []struct {
		name   string
		code   string
		stored string
		want   bool
	}{
		{"same code", "042137", stored, true},
		{"other code", "421370", stored, false},
		{"lost leading zero", "42137", stored, false},
		{"empty code", "", stored, false},
		{"empty both", "", "", false},
		{"stored hash longer", "042137", stored + "0", false},
		{"plaintext stored", "042137", "042137", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CodeMatches(tt.code, tt.stored))
		})
	}
}
