// Package feed simulates a remote feed service over the bundled sample
// catalog. Every call waits a random latency before answering.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"feedshelf/internal/apperror"
	"feedshelf/internal/domain"
	"feedshelf/internal/seed"

	"github.com/google/uuid"
	"mvdan.cc/xurls/v2"
)

const newFeedDescription = "Newly added feed"

type Options struct {
	MinLatency time.Duration
	MaxLatency time.Duration
}

type Fetcher struct {
	catalog    seed.Dataset
	minLatency time.Duration
	maxLatency time.Duration
	now        func() time.Time
	log        *slog.Logger
}

func NewFetcher(opts Options, log *slog.Logger) (*Fetcher, error) {
	catalog, err := seed.Load()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if opts.MaxLatency < opts.MinLatency {
		opts.MaxLatency = opts.MinLatency
	}

	return &Fetcher{
		catalog:    catalog,
		minLatency: opts.MinLatency,
		maxLatency: opts.MaxLatency,
		now:        time.Now,
		log:        log,
	}, nil
}

// ValidateFeedURL accepts a single http or https URL whose host contains
// a dot.
func (f *Fetcher) ValidateFeedURL(ctx context.Context, raw string) error {
	if err := f.delay(ctx, "ValidateFeedURL"); err != nil {
		return err
	}

	if !isFeedURL(raw) {
		return apperror.Validation("ValidateFeedURL", "please enter a valid RSS feed URL")
	}

	return nil
}

var feedURLRe = xurls.Strict()

func isFeedURL(raw string) bool {
	if raw == "" || strings.TrimSpace(raw) != raw {
		return false
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return false
	}

	if feedURLRe.FindString(raw) != raw {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return strings.Contains(u.Host, ".")
}

// FetchFeed returns the catalog feed with the given URL stamped as just
// fetched, or a new feed describing the URL when the catalog has none.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) (domain.Feed, error) {
	if err := f.delay(ctx, "FetchFeed"); err != nil {
		return domain.Feed{}, err
	}

	now := f.now().UTC()

	for _, feed := range f.catalog.Feeds {
		if feed.URL == feedURL {
			feed.LastFetchedAt = now
			feed.UpdatedAt = now
			return feed, nil
		}
	}

	u, err := url.Parse(feedURL)
	if err != nil {
		return domain.Feed{}, apperror.Validation("FetchFeed", "please enter a valid RSS feed URL")
	}

	f.log.DebugContext(ctx, "Feed is not in the catalog, generating one",
		"feedURL", feedURL)

	title := u.Host
	if title == "" {
		title = "Unknown"
	}

	return domain.Feed{
		ID:            "feed-" + uuid.NewString(),
		Title:         title,
		URL:           feedURL,
		SiteURL:       u.Scheme + "://" + u.Host,
		Description:   newFeedDescription,
		LastFetchedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// FetchArticles returns copies of the catalog articles of the feed with the
// given URL. Unknown URLs have no articles.
func (f *Fetcher) FetchArticles(ctx context.Context, feedURL string) ([]domain.Article, error) {
	if err := f.delay(ctx, "FetchArticles"); err != nil {
		return nil, err
	}

	for _, feed := range f.catalog.Feeds {
		if feed.URL == feedURL {
			return f.catalog.FeedArticles(feed.ID), nil
		}
	}

	return []domain.Article{}, nil
}

func (f *Fetcher) delay(ctx context.Context, op string) error {
	latency := f.minLatency
	if spread := f.maxLatency - f.minLatency; spread > 0 {
		latency += rand.N(spread + 1)
	}

	if latency <= 0 {
		return ctxError(ctx, op)
	}

	timer := time.NewTimer(latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctxError(ctx, op)
	}
}

func ctxError(ctx context.Context, op string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Timeout(op, err)
	}

	return err
}
