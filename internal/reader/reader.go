// Package reader implements the user flows that combine the feed service
// with the entity store: subscribing to a feed and refreshing all feeds.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"feedshelf/internal/apperror"
	"feedshelf/internal/domain"

	"golang.org/x/sync/errgroup"
)

const DefaultMaxConcurrentFetches = 4

type Fetcher interface {
	ValidateFeedURL(ctx context.Context, raw string) error
	FetchFeed(ctx context.Context, feedURL string) (domain.Feed, error)
	FetchArticles(ctx context.Context, feedURL string) ([]domain.Article, error)
}

type Store interface {
	Feeds() []domain.Feed
	Article(id string) (domain.Article, bool)
	AddFeed(ctx context.Context, feed domain.Feed) error
	UpdateFeed(ctx context.Context, id string, update domain.FeedUpdate) error
	AddArticles(ctx context.Context, batch []domain.Article) error
}

type Options struct {
	// MaxConcurrentFetches limits parallel article fetches during a refresh.
	MaxConcurrentFetches int
}

type Reader struct {
	fetcher       Fetcher
	store         Store
	maxConcurrent int
	now           func() time.Time
	log           *slog.Logger
}

func New(fetcher Fetcher, store Store, opts Options, log *slog.Logger) *Reader {
	if opts.MaxConcurrentFetches <= 0 {
		opts.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}

	return &Reader{
		fetcher:       fetcher,
		store:         store,
		maxConcurrent: opts.MaxConcurrentFetches,
		now:           time.Now,
		log:           log,
	}
}

type SubscribeResult struct {
	Feed     domain.Feed
	Articles int
	// Warning is set when the feed was added but its articles were not.
	Warning error
}

// Subscribe validates rawURL, adds the feed it points to and loads its
// articles. Failing to load the articles of an added feed is reported in
// the result, not as an error.
func (r *Reader) Subscribe(ctx context.Context, rawURL string) (SubscribeResult, error) {
	feedURL := strings.TrimSpace(rawURL)
	if feedURL == "" {
		return SubscribeResult{}, apperror.Validation("Subscribe", "please enter a feed URL")
	}

	if err := r.fetcher.ValidateFeedURL(ctx, feedURL); err != nil {
		return SubscribeResult{}, err
	}

	for _, f := range r.store.Feeds() {
		if f.URL == feedURL {
			return SubscribeResult{}, apperror.Validation("Subscribe", "this feed is already subscribed")
		}
	}

	feed, err := r.fetcher.FetchFeed(ctx, feedURL)
	if err != nil {
		return SubscribeResult{}, fmt.Errorf("fetch feed: %w", err)
	}

	if err = r.store.AddFeed(ctx, feed); err != nil {
		return SubscribeResult{}, fmt.Errorf("add feed: %w", err)
	}

	result := SubscribeResult{Feed: feed}

	articles, err := r.fetcher.FetchArticles(ctx, feed.URL)
	if err == nil {
		err = r.store.AddArticles(ctx, r.keepReadState(articles))
	}
	if err != nil {
		r.log.WarnContext(ctx, "Feed is added without articles",
			"error", err,
			"feedID", feed.ID,
			"feedURL", feed.URL)

		result.Warning = err
		return result, nil
	}

	result.Articles = len(articles)

	r.log.InfoContext(ctx, "Feed is subscribed",
		"feedID", feed.ID,
		"feedURL", feed.URL,
		"articles", result.Articles)

	return result, nil
}

type FeedFailure struct {
	FeedID string
	Title  string
	Err    error
}

type RefreshResult struct {
	// Succeeded holds the titles of feeds fetched successfully.
	Succeeded []string
	Failed    []FeedFailure
	Articles  int
}

type fetchResult struct {
	articles []domain.Article
	err      error
}

// Refresh fetches the articles of every feed concurrently and adds them in
// one batch. It fails only when every feed failed or the batch could not be
// saved.
func (r *Reader) Refresh(ctx context.Context) (RefreshResult, error) {
	feeds := r.store.Feeds()
	if len(feeds) == 0 {
		return RefreshResult{}, nil
	}

	results := make([]fetchResult, len(feeds))

	var g errgroup.Group
	g.SetLimit(r.maxConcurrent)

	for i, feed := range feeds {
		g.Go(func() error {
			articles, err := r.fetcher.FetchArticles(ctx, feed.URL)
			results[i] = fetchResult{articles: articles, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		result RefreshResult
		batch  []domain.Article
		errs   []error
	)

	for i, feed := range feeds {
		if err := results[i].err; err != nil {
			r.log.WarnContext(ctx, "Failed to fetch feed articles",
				"error", err,
				"feedID", feed.ID,
				"feedURL", feed.URL)

			result.Failed = append(result.Failed, FeedFailure{FeedID: feed.ID, Title: feed.Title, Err: err})
			errs = append(errs, err)
			continue
		}

		result.Succeeded = append(result.Succeeded, feed.Title)
		batch = append(batch, results[i].articles...)
	}

	if len(result.Succeeded) == 0 {
		return result, fmt.Errorf("refresh feeds: %w", errors.Join(errs...))
	}

	live := r.liveFeedIDs()
	batch = slices.DeleteFunc(batch, func(a domain.Article) bool { return !live[a.FeedID] })

	if err := r.store.AddArticles(ctx, r.keepReadState(batch)); err != nil {
		return result, fmt.Errorf("add articles: %w", err)
	}
	result.Articles = len(batch)

	fetchedAt := r.now().UTC()
	for i, feed := range feeds {
		if results[i].err != nil || !live[feed.ID] {
			continue
		}

		err := r.store.UpdateFeed(ctx, feed.ID, domain.FeedUpdate{LastFetchedAt: &fetchedAt})
		if err != nil {
			r.log.WarnContext(ctx, "Failed to stamp feed fetch time",
				"error", err,
				"feedID", feed.ID)
		}
	}

	r.log.InfoContext(ctx, "Feeds are refreshed",
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"articles", result.Articles)

	return result, nil
}

// liveFeedIDs returns the ids of the feeds subscribed right now. Feeds
// removed while a refresh was fetching are missing from it.
func (r *Reader) liveFeedIDs() map[string]bool {
	feeds := r.store.Feeds()

	live := make(map[string]bool, len(feeds))
	for _, f := range feeds {
		live[f.ID] = true
	}

	return live
}

// keepReadState marks fetched articles read when the stored copy already is.
func (r *Reader) keepReadState(articles []domain.Article) []domain.Article {
	for i, a := range articles {
		if stored, ok := r.store.Article(a.ID); ok && stored.IsRead {
			articles[i].IsRead = true
		}
	}

	return articles
}
