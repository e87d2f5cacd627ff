package index

import "strings"

const defaultSearchLimit = 50

// tokenize lowercases s and splits it into alphanumeric runs. Both the
// fallback matcher and its tests share this so query and document terms are
// folded identically.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	})
}

func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}
