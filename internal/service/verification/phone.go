package verification

import (
	"strings"
	"unicode"
)

// NormalizePhone converts a French mobile number to E.164.
//
//	"06 12 34 56 78"   -> "+33612345678"
//	"0033 7 12 34 56 78" -> "+33712345678"
//	"+33 6 12 34 56 78" -> "+33612345678"
//
// Landlines and foreign numbers are rejected: the gate only texts mobiles.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}
	s := b.String()

	var national string
	switch {
	case strings.HasPrefix(s, "+33"):
		national = s[3:]
	case strings.HasPrefix(s, "0033"):
		national = s[4:]
	case strings.HasPrefix(s, "0") && len(s) == 10:
		national = s[1:]
	default:
		return "", ErrInvalidPhone
	}

	// Tolerate the "(0)" trunk prefix people keep after +33.
	if len(national) == 10 && national[0] == '0' {
		national = national[1:]
	}
	if len(national) != 9 || (national[0] != '6' && national[0] != '7') {
		return "", ErrInvalidPhone
	}
	return "+33" + national, nil
}
