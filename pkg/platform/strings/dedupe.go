// Package strings normalizes repeated request values.
package strings

import "strings"

// DedupeAndTrim trims every value and drops empties and repeats, keeping
// first-seen order. Query parameters such as status arrive multiple times
// and sometimes whitespace-padded.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
