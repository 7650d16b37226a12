package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// Provider sends a one-time code to a phone and checks it.
type Provider interface {
	// Start sends a code and returns a provider reference (SID).
	Start(ctx context.Context, phone string) (string, error)
	// Check returns true when code is correct for the phone/SID pair.
	// A wrong code is (false, nil); errors are reserved for transport
	// failures, unknown verifications and exhausted attempts.
	Check(ctx context.Context, phone, sid, code string) (bool, error)
}

// GenerateCode returns n random decimal digits.
func GenerateCode(n int) (string, error) {
	if n <= 0 {
		n = 6
	}
	max := big.NewInt(10)
	out := make([]byte, n)
	for i := range out {
		d, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}

// ValidCodeFormat reports whether code is exactly six digits.
func ValidCodeFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
