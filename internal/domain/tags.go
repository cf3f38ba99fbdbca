package domain

import (
	"slices"
	"strings"
)

// ParseTags splits comma separated input into a tag set, trimming whitespace
// and dropping empty or repeated tags. Input order is preserved.
func ParseTags(input string) []string {
	var tags []string
	for _, part := range strings.Split(input, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" || slices.Contains(tags, tag) {
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}

// TagUniverse returns the union of every note's tags, sorted lexicographically.
func TagUniverse(tagSets ...[]string) []string {
	seen := make(map[string]struct{})
	for _, set := range tagSets {
		for _, t := range set {
			seen[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}
