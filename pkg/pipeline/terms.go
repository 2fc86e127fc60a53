package pipeline

import "strings"

// ParseTerms splits comma-separated input into trimmed query terms. Empty
// entries are dropped; order and duplicates are kept.
func ParseTerms(input string) []string {
	var terms []string
	for _, t := range strings.Split(input, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}
