package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"feedshelf/internal/apperror"
	"feedshelf/internal/domain"

	"github.com/hashicorp/go-multierror"
)

// part selects which pieces of the state a failed mutation restores.
type part uint8

const (
	partFeeds part = 1 << iota
	partArticles
	partActiveFeed
)

// mutate applies change optimistically, then runs persist. When persist
// fails the parts of the state named by restore are put back as they were
// before change and the persist error is returned.
// It must run on the mutation queue.
func (s *Store) mutate(
	ctx context.Context,
	op string,
	restore part,
	change func(st *Snapshot),
	persist func(ctx context.Context) error,
) error {
	before := s.Snapshot()

	s.publish(change)

	err := persist(ctx)
	if err == nil {
		return nil
	}

	s.publish(func(st *Snapshot) {
		if restore&partFeeds != 0 {
			st.Feeds = before.Feeds
		}
		if restore&partArticles != 0 {
			st.Articles = before.Articles
		}
		if restore&partActiveFeed != 0 {
			st.ActiveFeedID = before.ActiveFeedID
		}
	})

	s.log.ErrorContext(ctx, "Failed to persist, state is rolled back",
		"error", err,
		"operation", op)

	return err
}

// AddFeed appends feed and saves it.
func (s *Store) AddFeed(ctx context.Context, feed domain.Feed) error {
	if err := validateFeed(feed); err != nil {
		return err
	}

	return s.queue.Do(ctx, func(ctx context.Context) error {
		if err := s.checkUnique(feed); err != nil {
			return err
		}

		return s.mutate(ctx, "AddFeed", partFeeds,
			func(st *Snapshot) {
				st.Feeds = append(st.Feeds, feed)
			},
			func(ctx context.Context) error {
				return s.backend.SaveFeed(ctx, feed)
			})
	})
}

func validateFeed(feed domain.Feed) error {
	switch {
	case strings.TrimSpace(feed.ID) == "":
		return apperror.Validation("AddFeed", "feed id is required")
	case strings.TrimSpace(feed.Title) == "":
		return apperror.Validation("AddFeed", "feed title is required")
	case strings.TrimSpace(feed.URL) == "":
		return apperror.Validation("AddFeed", "feed URL is required")
	}

	return nil
}

func (s *Store) checkUnique(feed domain.Feed) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.state.Feeds {
		if f.ID == feed.ID {
			return apperror.Validation("AddFeed", fmt.Sprintf("feed %q already exists", feed.ID))
		}
		if f.URL == feed.URL {
			return apperror.Validation("AddFeed", "this feed is already subscribed")
		}
	}

	return nil
}

// UpdateFeed applies update to the feed with the given id and stamps its
// UpdatedAt with the current time.
func (s *Store) UpdateFeed(ctx context.Context, id string, update domain.FeedUpdate) error {
	return s.queue.Do(ctx, func(ctx context.Context) error {
		now := s.now()
		update.UpdatedAt = &now

		return s.mutate(ctx, "UpdateFeed", partFeeds,
			func(st *Snapshot) {
				for i := range st.Feeds {
					if st.Feeds[i].ID == id {
						st.Feeds[i] = update.Apply(st.Feeds[i])
					}
				}
			},
			func(ctx context.Context) error {
				return s.backend.UpdateFeed(ctx, id, update)
			})
	})
}

// RemoveFeed deletes the feed and its articles and clears the active feed
// when it was the removed one.
func (s *Store) RemoveFeed(ctx context.Context, id string) error {
	return s.queue.Do(ctx, func(ctx context.Context) error {
		return s.mutate(ctx, "RemoveFeed", partFeeds|partArticles|partActiveFeed,
			func(st *Snapshot) {
				st.Feeds = slices.DeleteFunc(st.Feeds, func(f domain.Feed) bool { return f.ID == id })
				st.Articles = slices.DeleteFunc(st.Articles, func(a domain.Article) bool { return a.FeedID == id })
				if st.ActiveFeedID == id {
					st.ActiveFeedID = ""
				}
			},
			func(ctx context.Context) error {
				return s.backend.DeleteFeed(ctx, id)
			})
	})
}

// AddArticles merges batch into the articles by id and recomputes the
// unread counts once the batch is saved.
func (s *Store) AddArticles(ctx context.Context, batch []domain.Article) error {
	if len(batch) == 0 {
		return nil
	}

	return s.queue.Do(ctx, func(ctx context.Context) error {
		err := s.mutate(ctx, "AddArticles", partArticles,
			func(st *Snapshot) {
				st.Articles = domain.MergeArticles(st.Articles, batch)
			},
			func(ctx context.Context) error {
				return s.backend.SaveArticles(ctx, batch)
			})
		if err != nil {
			return err
		}

		s.updateUnreadCounts(ctx)

		return nil
	})
}

// MarkAsRead marks the article read. Failures are logged, not returned.
func (s *Store) MarkAsRead(ctx context.Context, articleID string) {
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		if _, ok := s.Article(articleID); !ok {
			return apperror.NotFound("MarkAsRead", "article", articleID)
		}

		update := domain.ArticleUpdate{IsRead: domain.Ptr(true)}

		err := s.mutate(ctx, "MarkAsRead", partArticles,
			func(st *Snapshot) {
				for i := range st.Articles {
					if st.Articles[i].ID == articleID {
						st.Articles[i] = update.Apply(st.Articles[i])
					}
				}
			},
			func(ctx context.Context) error {
				return s.backend.UpdateArticle(ctx, articleID, update)
			})
		if err != nil {
			return err
		}

		s.updateUnreadCounts(ctx)

		return nil
	})
	if err != nil {
		s.log.WarnContext(ctx, "Failed to mark article as read",
			"error", err,
			"articleID", articleID)
	}
}

// UpdateUnreadCounts recomputes every feed's unread count from the articles
// and saves it. Save failures are logged and the recomputed counts are kept.
func (s *Store) UpdateUnreadCounts(ctx context.Context) {
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		s.updateUnreadCounts(ctx)
		return nil
	})
	if err != nil {
		s.log.WarnContext(ctx, "Failed to update unread counts",
			"error", err)
	}
}

func (s *Store) updateUnreadCounts(ctx context.Context) {
	var feeds []domain.Feed
	s.publish(func(st *Snapshot) {
		st.Feeds = countUnread(st.Feeds, st.Articles)
		feeds = slices.Clone(st.Feeds)
	})

	var result *multierror.Error
	for _, f := range feeds {
		err := s.backend.UpdateFeed(ctx, f.ID, domain.FeedUpdate{UnreadCount: domain.Ptr(f.UnreadCount)})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("update unread count of %s: %w", f.ID, err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		s.log.WarnContext(ctx, "Failed to persist unread counts",
			"error", err,
			"failedFeeds", len(result.Errors))
	}
}

// countUnread returns feeds with UnreadCount set to the number of unread
// articles belonging to each feed. feeds is modified in place.
func countUnread(feeds []domain.Feed, articles []domain.Article) []domain.Feed {
	unread := make(map[string]int, len(feeds))
	for _, a := range articles {
		if !a.IsRead {
			unread[a.FeedID]++
		}
	}

	for i := range feeds {
		feeds[i].UnreadCount = unread[feeds[i].ID]
	}

	return feeds
}

// InitializeFromStorage loads feeds and articles from the backend. When no
// feed is stored yet, the seed dataset is saved and used instead.
func (s *Store) InitializeFromStorage(ctx context.Context) error {
	return s.queue.Do(ctx, func(ctx context.Context) error {
		feeds, err := s.backend.GetFeeds(ctx)
		if err != nil {
			return fmt.Errorf("load feeds: %w", err)
		}

		articles, err := s.backend.GetArticles(ctx)
		if err != nil {
			return fmt.Errorf("load articles: %w", err)
		}

		if len(feeds) == 0 && s.seeder != nil {
			var seeded []domain.Article
			feeds, seeded, err = s.seed(ctx)
			if err != nil {
				return err
			}
			articles = domain.MergeArticles(articles, seeded)
		}

		s.publish(func(st *Snapshot) {
			st.Feeds = feeds
			st.Articles = articles
		})

		s.updateUnreadCounts(ctx)

		s.log.InfoContext(ctx, "Store is initialized",
			"feeds", len(feeds),
			"articles", len(articles))

		return nil
	})
}

func (s *Store) seed(ctx context.Context) ([]domain.Feed, []domain.Article, error) {
	feeds, articles, err := s.seeder()
	if err != nil {
		return nil, nil, fmt.Errorf("load seed: %w", err)
	}

	for _, f := range feeds {
		if err = s.backend.SaveFeed(ctx, f); err != nil {
			return nil, nil, fmt.Errorf("save seed feed: %w", err)
		}
	}

	if err = s.backend.SaveArticles(ctx, articles); err != nil {
		return nil, nil, fmt.Errorf("save seed articles: %w", err)
	}

	s.log.InfoContext(ctx, "Storage is seeded",
		"feeds", len(feeds),
		"articles", len(articles))

	return feeds, articles, nil
}
