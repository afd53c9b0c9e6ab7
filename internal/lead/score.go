// Package lead classifies purchase intent from a contact's message history.
// Everything here is a pure function over already-reconstructed turns.
package lead

import (
	"strings"

	"github.com/Mugen-GS/MUGEN-STORE/internal/contacts"
)

// buyingKeywords are the signals DetectIntent matches, case-insensitively.
var buyingKeywords = []string{
	"price", "cost", "how much", "buy", "purchase", "order",
	"available", "in stock", "delivery", "shipping", "payment",
	"pay", "urgent", "need it", "want to buy", "interested in buying",
}

// DetectIntent reports whether the message contains any buying signal.
func DetectIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range buyingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Score rates a contact's engagement from their history on a 0-100 scale:
// base 10, up to 30 for volume (5 per turn), and 20 per customer turn that
// carries buying intent, clamped at 100.
func Score(history []contacts.Turn) int {
	score := 10

	volume := len(history) * 5
	if volume > 30 {
		volume = 30
	}
	score += volume

	for _, turn := range history {
		if turn.Role == contacts.RoleUser && DetectIntent(turn.Message) {
			score += 20
		}
	}

	if score > 100 {
		score = 100
	}
	return score
}

// Classify maps a score to a lead status. ok is false when the score is too
// low to change anything, in which case the contact's status stays as-is.
func Classify(score int) (status string, ok bool) {
	switch {
	case score > 60:
		return contacts.StatusHotLead, true
	case score > 30:
		return contacts.StatusInterested, true
	default:
		return "", false
	}
}
