package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabets for generated identifiers.
const (
	// UpperAlphanumeric holds digits and upper-case letters.
	UpperAlphanumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// UpperLetters holds upper-case letters only.
	UpperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// RandomString returns a string of length characters drawn uniformly from alphabet.
func RandomString(alphabet string, length int) (string, error) {
	if alphabet == "" || length < 0 {
		return "", fmt.Errorf("generate random string: invalid arguments")
	}
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate random string: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
