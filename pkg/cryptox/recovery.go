package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// recoveryAlphabet drops characters that are easy to misread (0/O, 1/I/L,
// vowels that form words).
const recoveryAlphabet = "23456789BCDFGHJKMNPQRTVWXY"

const recoveryHalf = 5

// GenerateRecoveryCode returns a single-use code formatted as XXXXX-XXXXX.
func GenerateRecoveryCode() (string, error) {
	var b strings.Builder
	b.Grow(recoveryHalf*2 + 1)

	limit := big.NewInt(int64(len(recoveryAlphabet)))
	for i := range recoveryHalf * 2 {
		if i == recoveryHalf {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate recovery code: %w", err)
		}
		b.WriteByte(recoveryAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeRecoveryCode strips spaces and dashes and upper-cases the code so
// that "abcde-fghij", "ABCDE FGHIJ" and "ABCDEFGHIJ" fingerprint the same.
func NormalizeRecoveryCode(code string) string {
	code = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, code)
	return strings.ToUpper(code)
}
