package storage

import (
	"context"
	"slices"

	"feedshelf/internal/apperror"
	"feedshelf/internal/domain"
)

func (s *Storage) GetArticles(ctx context.Context) ([]domain.Article, error) {
	articles, err := load[domain.Article](ctx, s.kv, ArticlesKey)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to get articles",
			"error", err)

		return nil, apperror.Persistence("GetArticles", err)
	}

	return articles, nil
}

func (s *Storage) GetFeedArticles(ctx context.Context, feedID string) ([]domain.Article, error) {
	articles, err := s.GetArticles(ctx)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(articles, func(a domain.Article) bool { return a.FeedID != feedID }), nil
}

// SaveArticles merges batch into the stored articles by id. A later article
// wins over an earlier one with the same id; stored order is kept and new ids
// are appended in batch order.
func (s *Storage) SaveArticles(ctx context.Context, batch []domain.Article) error {
	articles, err := load[domain.Article](ctx, s.kv, ArticlesKey)
	if err != nil {
		return s.persistenceError(ctx, "SaveArticles", "", err)
	}

	normalized := make([]domain.Article, len(batch))
	for i, a := range batch {
		normalized[i] = utcArticle(a)
	}

	if err = save(ctx, s.kv, ArticlesKey, domain.MergeArticles(articles, normalized)); err != nil {
		return s.persistenceError(ctx, "SaveArticles", "", err)
	}

	return nil
}

func (s *Storage) UpdateArticle(ctx context.Context, id string, update domain.ArticleUpdate) error {
	articles, err := load[domain.Article](ctx, s.kv, ArticlesKey)
	if err != nil {
		return s.persistenceError(ctx, "UpdateArticle", id, err)
	}

	i := slices.IndexFunc(articles, func(a domain.Article) bool { return a.ID == id })
	if i < 0 {
		return apperror.NotFound("UpdateArticle", "article", id)
	}

	articles[i] = update.Apply(articles[i])

	if err = save(ctx, s.kv, ArticlesKey, articles); err != nil {
		return s.persistenceError(ctx, "UpdateArticle", id, err)
	}

	return nil
}
