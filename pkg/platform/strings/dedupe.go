// Package strings holds small string-slice helpers shared by config parsing.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element, drops empties, and removes duplicates,
// keeping first-seen order. Comma-split env lists (broker addresses) pass
// through here.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower additionally lowercases each element, for lists
// compared case-insensitively.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	return dedupe(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

func dedupe(values []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
