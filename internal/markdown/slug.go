// Package markdown derives heading anchors and tables of contents from
// article Markdown.
package markdown

import (
	"fmt"
	"regexp"
	"strings"
)

var nonSlugRe = regexp.MustCompile(`[^\w\p{Han}]+`)

// Slugify lowercases text and joins its runs of ASCII word characters and
// Han ideographs with single dashes.
func Slugify(text string) string {
	slug := nonSlugRe.ReplaceAllString(strings.TrimSpace(strings.ToLower(text)), "-")
	return strings.Trim(slug, "-")
}

// UniqueSlug returns the slug of text that is not in existing. Text without
// slug characters becomes heading-N. Colliding slugs get a numeric suffix.
// existing is not modified.
func UniqueSlug(text string, existing map[string]struct{}) string {
	base := Slugify(text)

	if base == "" {
		for n := 1; ; n++ {
			slug := fmt.Sprintf("heading-%d", n)
			if _, ok := existing[slug]; !ok {
				return slug
			}
		}
	}

	if _, ok := existing[base]; !ok {
		return base
	}

	for n := 1; ; n++ {
		slug := fmt.Sprintf("%s-%d", base, n)
		if _, ok := existing[slug]; !ok {
			return slug
		}
	}
}
