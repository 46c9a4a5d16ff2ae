// Package store holds the in-memory feeds and articles, applies mutations
// optimistically and writes them through to the backing store, rolling the
// in-memory state back when persistence fails.
package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"feedshelf/internal/domain"
	"feedshelf/internal/queue"
)

// Backend is the persistence layer the store writes through to.
type Backend interface {
	GetFeeds(ctx context.Context) ([]domain.Feed, error)
	SaveFeed(ctx context.Context, feed domain.Feed) error
	UpdateFeed(ctx context.Context, id string, update domain.FeedUpdate) error
	DeleteFeed(ctx context.Context, id string) error
	GetArticles(ctx context.Context) ([]domain.Article, error)
	SaveArticles(ctx context.Context, batch []domain.Article) error
	UpdateArticle(ctx context.Context, id string, update domain.ArticleUpdate) error
}

// Seeder returns the sample feeds and articles used on first run.
type Seeder func() ([]domain.Feed, []domain.Article, error)

// Snapshot is a copy of the store state.
type Snapshot struct {
	Feeds        []domain.Feed
	Articles     []domain.Article
	ActiveFeedID string
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Feeds:        slices.Clone(s.Feeds),
		Articles:     slices.Clone(s.Articles),
		ActiveFeedID: s.ActiveFeedID,
	}
}

type Option func(*Store)

// WithClock replaces time.Now for update timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	backend Backend
	seeder  Seeder
	queue   *queue.Queue
	log     *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state Snapshot

	listenersMu  sync.Mutex
	listeners    map[int]func(Snapshot)
	nextListener int
}

func New(backend Backend, seeder Seeder, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		seeder:    seeder,
		queue:     queue.New(log),
		log:       log,
		now:       time.Now,
		listeners: make(map[int]func(Snapshot)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close stops the mutation queue and drops all subscribers.
// Mutations issued afterwards fail with queue.ErrStopped.
func (s *Store) Close() {
	s.queue.Stop()

	s.listenersMu.Lock()
	clear(s.listeners)
	s.listenersMu.Unlock()
}

// Subscribe registers fn to be called with a copy of the state after every
// change. fn runs on the mutation goroutine and must not call mutations.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Store) notify(snap Snapshot) {
	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(snap.clone())
	}
}

// publish applies change to the state under the write lock and notifies
// subscribers with the result.
func (s *Store) publish(change func(st *Snapshot)) {
	s.mu.Lock()
	change(&s.state)
	snap := s.state.clone()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.clone()
}

func (s *Store) Feeds() []domain.Feed {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.state.Feeds)
}

func (s *Store) Articles() []domain.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.state.Articles)
}

func (s *Store) FeedArticles(feedID string) []domain.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var articles []domain.Article
	for _, a := range s.state.Articles {
		if a.FeedID == feedID {
			articles = append(articles, a)
		}
	}

	return articles
}

func (s *Store) Feed(id string) (domain.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.IndexFunc(s.state.Feeds, func(f domain.Feed) bool { return f.ID == id })
	if i < 0 {
		return domain.Feed{}, false
	}

	return s.state.Feeds[i], true
}

func (s *Store) Article(id string) (domain.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.IndexFunc(s.state.Articles, func(a domain.Article) bool { return a.ID == id })
	if i < 0 {
		return domain.Article{}, false
	}

	return s.state.Articles[i], true
}

func (s *Store) ActiveFeedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.ActiveFeedID
}

// SetActiveFeedID selects the feed shown by the UI. It is not persisted.
func (s *Store) SetActiveFeedID(id string) {
	ctx := context.Background()

	err := s.queue.Do(ctx, func(context.Context) error {
		s.publish(func(st *Snapshot) { st.ActiveFeedID = id })
		return nil
	})
	if err != nil {
		s.log.WarnContext(ctx, "Failed to set active feed",
			"error", err,
			"feedID", id)
	}
}
