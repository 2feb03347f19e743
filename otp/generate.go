package otp

import (
	"crypto/rand"
	"math/big"

	"github.com/kbukum/coordkit/errors"
)

const (
	digits = "0123456789"
	// alphanumeric omits I, O, 0 and 1, which are easy to misread.
	alphanumeric = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateNumeric returns an n-digit code with each digit drawn uniformly.
func GenerateNumeric(n int) (string, error) {
	return generate(n, digits)
}

// GenerateAlphanumeric returns an n-character code drawn uniformly from an
// unambiguous upper-case alphabet.
func GenerateAlphanumeric(n int) (string, error) {
	return generate(n, alphanumeric)
}

func generate(n int, alphabet string) (string, error) {
	if n <= 0 {
		return "", errors.Validation("otp length must be positive")
	}
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", errors.Internal(err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
