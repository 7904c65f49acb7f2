// Package parser turns raw ingredient label text into ordered mentions.
// It is pure: identical input always yields identical output.
package parser

import (
	"regexp"
	"strings"
)

// Mention is one ingredient name at its label position. Positions are
// assigned after filtering, so the first kept mention is always position 1.
type Mention struct {
	Name     string
	Position int
}

var (
	// Leading label headers like "Ingredients:" or "INCI:".
	headerRe = regexp.MustCompile(`(?i)^\s*(ingredients?|inci|composition)\s*:\s*`)

	// Percentage annotations such as "2%", "0.5 %" or "(5%)".
	percentRe = regexp.MustCompile(`\(?\s*\d+(\.\d+)?\s*%\s*\)?`)

	// Trailing truncation markers on scraped labels.
	truncationRe = regexp.MustCompile(`(\.\.\.|…)\s*$`)
)

// Parse splits a raw comma-separated ingredient label into ordered mentions.
// Parenthetical sub-lists are flattened into the sequence, percentage
// annotations and truncation markers are stripped, and tokens that are empty
// after cleaning are dropped. Empty input yields nil, not an error.
func Parse(raw string) []Mention {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	raw = headerRe.ReplaceAllString(raw, "")
	raw = truncationRe.ReplaceAllString(raw, "")

	// Flatten parenthetical sub-lists: "Parfum (Linalool, Limonene)" becomes
	// three comma-separated tokens. Semicolons show up on some EU labels.
	replacer := strings.NewReplacer("(", ",", ")", ",", "[", ",", "]", ",", ";", ",", "\n", ",")
	raw = replacer.Replace(raw)

	tokens := strings.Split(raw, ",")
	mentions := make([]Mention, 0, len(tokens))
	pos := 0
	for _, tok := range tokens {
		name := cleanToken(tok)
		if name == "" {
			continue
		}
		pos++
		mentions = append(mentions, Mention{Name: name, Position: pos})
	}
	if len(mentions) == 0 {
		return nil
	}
	return mentions
}

// cleanToken strips annotations and junk from a single label token.
// Returns "" when nothing usable remains.
func cleanToken(tok string) string {
	tok = percentRe.ReplaceAllString(tok, "")
	tok = strings.Trim(tok, " \t.·*+-–")
	tok = strings.Join(strings.Fields(tok), " ")

	switch strings.ToLower(tok) {
	case "", "and", "etc", "may contain":
		return ""
	}
	return tok
}
