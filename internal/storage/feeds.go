package storage

import (
	"context"
	"slices"

	"feedshelf/internal/apperror"
	"feedshelf/internal/domain"
)

func (s *Storage) GetFeeds(ctx context.Context) ([]domain.Feed, error) {
	feeds, err := load[domain.Feed](ctx, s.kv, FeedsKey)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to get feeds",
			"error", err)

		return nil, apperror.Persistence("GetFeeds", err)
	}

	return feeds, nil
}

// SaveFeed replaces the feed with the same id or appends it.
func (s *Storage) SaveFeed(ctx context.Context, feed domain.Feed) error {
	feeds, err := load[domain.Feed](ctx, s.kv, FeedsKey)
	if err != nil {
		return s.persistenceError(ctx, "SaveFeed", feed.ID, err)
	}

	feed = utcFeed(feed)
	if i := slices.IndexFunc(feeds, func(f domain.Feed) bool { return f.ID == feed.ID }); i >= 0 {
		feeds[i] = feed
	} else {
		feeds = append(feeds, feed)
	}

	if err = save(ctx, s.kv, FeedsKey, feeds); err != nil {
		return s.persistenceError(ctx, "SaveFeed", feed.ID, err)
	}

	return nil
}

func (s *Storage) UpdateFeed(ctx context.Context, id string, update domain.FeedUpdate) error {
	feeds, err := load[domain.Feed](ctx, s.kv, FeedsKey)
	if err != nil {
		return s.persistenceError(ctx, "UpdateFeed", id, err)
	}

	i := slices.IndexFunc(feeds, func(f domain.Feed) bool { return f.ID == id })
	if i < 0 {
		return apperror.NotFound("UpdateFeed", "feed", id)
	}

	feeds[i] = utcFeed(update.Apply(feeds[i]))

	if err = save(ctx, s.kv, FeedsKey, feeds); err != nil {
		return s.persistenceError(ctx, "UpdateFeed", id, err)
	}

	return nil
}

// DeleteFeed removes the feed and every article that references it.
// Deleting an unknown feed is not an error.
func (s *Storage) DeleteFeed(ctx context.Context, id string) error {
	feeds, err := load[domain.Feed](ctx, s.kv, FeedsKey)
	if err != nil {
		return s.persistenceError(ctx, "DeleteFeed", id, err)
	}

	articles, err := load[domain.Article](ctx, s.kv, ArticlesKey)
	if err != nil {
		return s.persistenceError(ctx, "DeleteFeed", id, err)
	}

	feeds = slices.DeleteFunc(feeds, func(f domain.Feed) bool { return f.ID == id })
	articles = slices.DeleteFunc(articles, func(a domain.Article) bool { return a.FeedID == id })

	// Articles go first so a failed feeds write leaves no orphaned articles.
	if err = save(ctx, s.kv, ArticlesKey, articles); err != nil {
		return s.persistenceError(ctx, "DeleteFeed", id, err)
	}

	if err = save(ctx, s.kv, FeedsKey, feeds); err != nil {
		return s.persistenceError(ctx, "DeleteFeed", id, err)
	}

	return nil
}

func (s *Storage) persistenceError(ctx context.Context, op, id string, err error) error {
	s.log.ErrorContext(ctx, "Failed to persist",
		"error", err,
		"operation", op,
		"id", id)

	return apperror.Persistence(op, err)
}
