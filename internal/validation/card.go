package validation

import (
	"strings"
	"unicode"
)

// ValidateCardNumber applies the Luhn checksum after stripping whitespace.
func ValidateCardNumber(number string) bool {
	digits := stripSpaces(number)
	if digits == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidateAuthCode reports whether code is all digits and exactly as long as the
// protocol requires.
func ValidateAuthCode(code, protocolID string) bool {
	want, _ := CodeLength(protocolID)
	if len(code) != want {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// MaskCardNumber keeps only the last four digits.
func MaskCardNumber(number string) string {
	digits := stripSpaces(number)
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
