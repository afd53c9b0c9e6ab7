package contacts

import "strings"

// Normalize canonicalizes a phone identifier into the single comparable form
// used everywhere a number is stored or looked up. Punctuation and spaces are
// stripped; a leading + survives; a bare digit string longer than ten digits
// is assumed to carry a country code and gets a + prepended.
//
// The >10-digit heuristic misclassifies numbers with trunk prefixes or
// unusual national lengths. It is kept on purpose: stored rows were written
// with it, and changing it would split existing contact identities.
//
// Normalize is idempotent.
func Normalize(phone string) string {
	if phone == "" {
		return ""
	}

	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	normalized := b.String()

	if strings.HasPrefix(normalized, "+") {
		return normalized
	}
	if len(normalized) > 10 {
		return "+" + normalized
	}
	return normalized
}
