package rag

import (
	"strings"
	"unicode"

	"github.com/tyrz939/dehum-assistant/internal/message"
)

// productPatterns are model names and brands worth anchoring a documentation
// query on. Longer, digit-bearing patterns are the most specific.
var productPatterns = []string{
	"SP500C", "SP1000C", "SP1500C", "SP500", "SP1000", "SP1500",
	"IDHR60", "IDHR96", "IDHR120",
	"DA-X60i", "DA-X140i", "DA-X60", "DA-X140",
	"Suntec", "Fairland", "Luko",
	"SP Pro", "SP series", "IDHR series", "DA-X series",
}

// RefineQuery prepends the most specific product recently mentioned by the
// user, so a bare follow-up like "installation steps" still retrieves the
// right model's documentation. Only the last five messages are scanned.
func RefineQuery(query string, history []message.Message) string {
	if len(history) == 0 {
		return query
	}
	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	seen := make(map[string]bool)
	for _, msg := range recent {
		if msg.Role != message.RoleUser {
			continue
		}
		lower := strings.ToLower(msg.Content)
		for _, pattern := range productPatterns {
			if strings.Contains(lower, strings.ToLower(pattern)) {
				seen[pattern] = true
			}
		}
	}
	if len(seen) == 0 {
		return query
	}

	// Prefer patterns carrying a model number; break ties by length.
	best := ""
	bestSpecific := false
	for p := range seen {
		specific := hasDigit(p)
		switch {
		case specific && !bestSpecific:
			best, bestSpecific = p, true
		case specific == bestSpecific && better(p, best):
			best = p
		}
	}
	return best + " " + query
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// better orders candidates of equal specificity: longer wins, then
// lexicographic for determinism.
func better(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a < b
}
