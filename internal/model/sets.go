package model

import (
	"strings"

	"github.com/samber/lo"
)

// AddToSet appends v unless already present. The input slice is not modified.
func AddToSet(set []string, v string) []string {
	if lo.Contains(set, v) {
		return append([]string(nil), set...)
	}
	out := make([]string, 0, len(set)+1)
	out = append(out, set...)
	return append(out, v)
}

// RemoveFromSet drops every occurrence of v. The input slice is not modified.
func RemoveFromSet(set []string, v string) []string {
	return lo.Without(set, v)
}

// NormalizeTags trims, drops empties and de-duplicates tags while keeping
// first-seen order.
func NormalizeTags(tags []string) []string {
	cleaned := lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "#"))
		return t, t != ""
	})
	return lo.Uniq(cleaned)
}
