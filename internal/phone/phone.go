// Package phone canonicalizes phone numbers to a single international form
// so that the number a customer typed into the order form can be compared
// with the contact they later share in chat.
package phone

import "strings"

// Normalize strips every character that is not a digit or a leading "+",
// replaces a leading domestic trunk "8" with the country code "7", and makes
// sure the result begins with "+". It is a pure function and idempotent:
// Normalize(Normalize(x)) == Normalize(x).
//
// A number submitted with an explicit "+" already carries its country code,
// so the trunk swap applies only to bare domestic numbers.
//
// Malformed input yields a syntactically plausible but semantically invalid
// number; callers that need a guarantee must validate separately.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if !strings.HasPrefix(strings.TrimSpace(raw), "+") && strings.HasPrefix(digits, "8") {
		digits = "7" + digits[1:]
	}
	return "+" + digits
}

// Match reports whether a and b canonicalize to the same number. It never
// panics and returns false when either side has no digits at all.
func Match(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "+" || nb == "+" {
		return false
	}
	return na == nb
}
