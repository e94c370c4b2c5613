package utils

import "strings"

// NormalizePhoneNumber canonicalizes a phone number for storage. A plus
// sign before the first digit marks the number as already international;
// Thai local numbers (leading 0, nine or ten digits) get the +66 country
// code with the trunk zero dropped.
func NormalizePhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	intl := false
	var digits strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && digits.Len() == 0:
			intl = true
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}

	if !intl && strings.HasPrefix(d, "0") && (len(d) == 9 || len(d) == 10) {
		return "+66" + d[1:]
	}
	return "+" + d
}
