package domain

import (
	"cmp"
	"slices"
)

// MergeArticles returns existing with batch merged in by id, last write wins.
// Neither input is modified.
func MergeArticles(existing, batch []Article) []Article {
	merged := make([]Article, len(existing), len(existing)+len(batch))
	copy(merged, existing)

	index := make(map[string]int, len(existing)+len(batch))
	for i, a := range merged {
		index[a.ID] = i
	}

	for _, a := range batch {
		if i, ok := index[a.ID]; ok {
			merged[i] = a
			continue
		}

		index[a.ID] = len(merged)
		merged = append(merged, a)
	}

	return merged
}

// SortArticlesByPublished orders articles newest first, breaking ties by id.
func SortArticlesByPublished(articles []Article) {
	slices.SortFunc(articles, func(a, b Article) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
