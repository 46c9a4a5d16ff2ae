package store

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"feedshelf/internal/apperror"
	"feedshelf/internal/domain"
	"feedshelf/internal/queue"
	"feedshelf/internal/storage"
)

var errDisk = errors.New("disk full")

// fakeBackend is a real storage over an in-memory KV whose writes can be
// made to fail per operation.
type fakeBackend struct {
	*storage.Storage

	mu   sync.Mutex
	fail map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		Storage: storage.New(storage.NewMemoryKV(0), slog.Default()),
		fail:    make(map[string]bool),
	}
}

func (b *fakeBackend) failOn(op string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[op] = fail
}

func (b *fakeBackend) check(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail[op] {
		return apperror.Persistence(op, errDisk)
	}
	return nil
}

func (b *fakeBackend) SaveFeed(ctx context.Context, feed domain.Feed) error {
	if err := b.check("SaveFeed"); err != nil {
		return err
	}
	return b.Storage.SaveFeed(ctx, feed)
}

func (b *fakeBackend) UpdateFeed(ctx context.Context, id string, update domain.FeedUpdate) error {
	if err := b.check("UpdateFeed"); err != nil {
		return err
	}
	return b.Storage.UpdateFeed(ctx, id, update)
}

func (b *fakeBackend) DeleteFeed(ctx context.Context, id string) error {
	if err := b.check("DeleteFeed"); err != nil {
		return err
	}
	return b.Storage.DeleteFeed(ctx, id)
}

func (b *fakeBackend) SaveArticles(ctx context.Context, batch []domain.Article) error {
	if err := b.check("SaveArticles"); err != nil {
		return err
	}
	return b.Storage.SaveArticles(ctx, batch)
}

func (b *fakeBackend) UpdateArticle(ctx context.Context, id string, update domain.ArticleUpdate) error {
	if err := b.check("UpdateArticle"); err != nil {
		return err
	}
	return b.Storage.UpdateArticle(ctx, id, update)
}

var testTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func testFeed(id string) domain.Feed {
	return domain.Feed{
		ID:        id,
		Title:     "Feed " + id,
		URL:       "https://example.com/" + id + ".xml",
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

func testArticle(id, feedID string, read bool) domain.Article {
	return domain.Article{
		ID:          id,
		FeedID:      feedID,
		Title:       "Article " + id,
		Content:     "# " + id,
		URL:         "https://example.com/" + id,
		PublishedAt: testTime,
		IsRead:      read,
		CreatedAt:   testTime,
	}
}

func testSeeder() ([]domain.Feed, []domain.Article, error) {
	return []domain.Feed{testFeed("feed-1"), testFeed("feed-2")},
		[]domain.Article{
			testArticle("a1", "feed-1", false),
			testArticle("a2", "feed-1", true),
			testArticle("a3", "feed-2", false),
		}, nil
}

// newTestStore returns an initialized store over the seed dataset.
func newTestStore(t *testing.T) (*Store, *fakeBackend) {
	t.Helper()

	backend := newFakeBackend()
	s := New(backend, testSeeder, slog.Default(), WithClock(func() time.Time { return testTime.Add(time.Hour) }))
	t.Cleanup(s.Close)

	if err := s.InitializeFromStorage(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	return s, backend
}

func unreadCounts(feeds []domain.Feed) map[string]int {
	counts := make(map[string]int, len(feeds))
	for _, f := range feeds {
		counts[f.ID] = f.UnreadCount
	}
	return counts
}

func checkUnreadCounts(t *testing.T, s *Store) {
	t.Helper()

	snap := s.Snapshot()
	for _, f := range snap.Feeds {
		want := 0
		for _, a := range snap.Articles {
			if a.FeedID == f.ID && !a.IsRead {
				want++
			}
		}
		if f.UnreadCount != want {
			t.Fatalf("feed %s: unread count %d, want %d", f.ID, f.UnreadCount, want)
		}
	}
}

func TestInitializeSeedsEmptyStorage(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	feeds := s.Feeds()
	if len(feeds) != 2 || len(s.Articles()) != 3 {
		t.Fatalf("expected seed state, got %d feeds and %d articles", len(feeds), len(s.Articles()))
	}

	counts := unreadCounts(feeds)
	if counts["feed-1"] != 1 || counts["feed-2"] != 1 {
		t.Fatalf("unexpected unread counts: %v", counts)
	}

	stored, err := backend.GetFeeds(ctx)
	if err != nil || len(stored) != 2 {
		t.Fatalf("expected seed feeds to be saved: %d, %v", len(stored), err)
	}
	if unreadCounts(stored)["feed-1"] != 1 {
		t.Fatalf("expected unread counts to be saved, got %v", unreadCounts(stored))
	}

	storedArticles, err := backend.GetArticles(ctx)
	if err != nil || len(storedArticles) != 3 {
		t.Fatalf("expected seed articles to be saved: %d, %v", len(storedArticles), err)
	}
}

func TestInitializeKeepsStoredFeeds(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	_ = backend.SaveFeed(ctx, testFeed("mine"))
	_ = backend.SaveArticles(ctx, []domain.Article{testArticle("m1", "mine", false)})

	seeded := false
	seeder := func() ([]domain.Feed, []domain.Article, error) {
		seeded = true
		return testSeeder()
	}

	s := New(backend, seeder, slog.Default())
	defer s.Close()

	if err := s.InitializeFromStorage(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if seeded {
		t.Fatalf("seed must not be used when feeds are stored")
	}
	if feeds := s.Feeds(); len(feeds) != 1 || feeds[0].UnreadCount != 1 {
		t.Fatalf("unexpected feeds: %+v", feeds)
	}
}

func TestInitializeReadFailure(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV(0)
	_ = kv.Put(ctx, storage.FeedsKey, []byte("not json"))

	s := New(storage.New(kv, slog.Default()), testSeeder, slog.Default())
	defer s.Close()

	if err := s.InitializeFromStorage(ctx); !apperror.Is(err, apperror.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(s.Feeds()) != 0 {
		t.Fatalf("state must stay empty when storage cannot be read")
	}
}

func TestAddFeed(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	if err := s.AddFeed(ctx, testFeed("feed-3")); err != nil {
		t.Fatalf("add feed: %v", err)
	}

	if _, ok := s.Feed("feed-3"); !ok {
		t.Fatalf("expected feed in memory")
	}
	stored, _ := backend.GetFeeds(ctx)
	if len(stored) != 3 {
		t.Fatalf("expected feed to be saved, got %d feeds", len(stored))
	}
}

func TestAddFeedValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	duplicateURL := testFeed("feed-9")
	duplicateURL.URL = testFeed("feed-1").URL

	noTitle := testFeed("feed-9")
	noTitle.Title = " "

	tests := []struct {
		name string
		feed domain.Feed
	}{
		{name: "missing id", feed: domain.Feed{Title: "x", URL: "https://x.example/rss"}},
		{name: "blank title", feed: noTitle},
		{name: "duplicate id", feed: testFeed("feed-1")},
		{name: "duplicate url", feed: duplicateURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AddFeed(ctx, tt.feed)
			if !apperror.Is(err, apperror.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(s.Feeds()) != 2 {
				t.Fatalf("feeds changed on rejected add")
			}
		})
	}
}

func TestAddFeedFailureRollsBack(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	before := s.Snapshot()

	var (
		mu   sync.Mutex
		seen []int
	)
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, len(snap.Feeds))
		mu.Unlock()
	})
	defer unsubscribe()

	backend.failOn("SaveFeed", true)

	err := s.AddFeed(ctx, testFeed("feed-3"))
	if !apperror.Is(err, apperror.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if !errors.Is(err, errDisk) {
		t.Fatalf("expected cause to be kept, got %v", err)
	}

	if after := s.Snapshot(); !reflect.DeepEqual(after, before) {
		t.Fatalf("expected state to be rolled back\nbefore: %+v\nafter:  %+v", before, after)
	}
	if _, ok := s.Feed("feed-3"); ok {
		t.Fatalf("rolled back feed is still present")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 3 || seen[1] != 2 {
		t.Fatalf("expected optimistic then rolled back notifications, got %v", seen)
	}
}

func TestUpdateFeedStampsUpdatedAt(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateFeed(ctx, "feed-1", domain.FeedUpdate{Title: domain.Ptr("Renamed")}); err != nil {
		t.Fatalf("update feed: %v", err)
	}

	want := testTime.Add(time.Hour)

	feed, _ := s.Feed("feed-1")
	if feed.Title != "Renamed" || !feed.UpdatedAt.Equal(want) {
		t.Fatalf("unexpected feed in memory: %+v", feed)
	}

	stored, _ := backend.GetFeeds(ctx)
	if stored[0].Title != "Renamed" || !stored[0].UpdatedAt.Equal(want) {
		t.Fatalf("unexpected stored feed: %+v", stored[0])
	}
}

func TestUpdateFeedFailureRollsBack(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	before := s.Snapshot()

	backend.failOn("UpdateFeed", true)

	if err := s.UpdateFeed(ctx, "feed-1", domain.FeedUpdate{Title: domain.Ptr("Renamed")}); err == nil {
		t.Fatalf("expected error")
	}

	if after := s.Snapshot(); !reflect.DeepEqual(after, before) {
		t.Fatalf("expected state to be rolled back\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestUpdateFeedUnknown(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateFeed(context.Background(), "missing", domain.FeedUpdate{Title: domain.Ptr("x")})
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveFeedCascades(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	s.SetActiveFeedID("feed-1")

	if err := s.RemoveFeed(ctx, "feed-1"); err != nil {
		t.Fatalf("remove feed: %v", err)
	}

	if _, ok := s.Feed("feed-1"); ok {
		t.Fatalf("feed still present")
	}
	if len(s.FeedArticles("feed-1")) != 0 {
		t.Fatalf("articles of removed feed still present")
	}
	if s.ActiveFeedID() != "" {
		t.Fatalf("expected active feed to be cleared, got %q", s.ActiveFeedID())
	}

	stored, _ := backend.GetArticles(ctx)
	for _, a := range stored {
		if a.FeedID == "feed-1" {
			t.Fatalf("stored article %s of removed feed survived", a.ID)
		}
	}
}

func TestRemoveFeedKeepsOtherActiveFeed(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetActiveFeedID("feed-2")

	if err := s.RemoveFeed(context.Background(), "feed-1"); err != nil {
		t.Fatalf("remove feed: %v", err)
	}
	if s.ActiveFeedID() != "feed-2" {
		t.Fatalf("active feed changed to %q", s.ActiveFeedID())
	}
}

func TestRemoveFeedFailureRollsBack(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	s.SetActiveFeedID("feed-1")
	before := s.Snapshot()

	backend.failOn("DeleteFeed", true)

	if err := s.RemoveFeed(ctx, "feed-1"); !apperror.Is(err, apperror.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	after := s.Snapshot()
	if !reflect.DeepEqual(after, before) {
		t.Fatalf("expected state to be rolled back\nbefore: %+v\nafter:  %+v", before, after)
	}
	if after.ActiveFeedID != "feed-1" {
		t.Fatalf("expected active feed to be restored, got %q", after.ActiveFeedID)
	}
}

// articlesFailingKV fails writes of the articles collection once armed.
type articlesFailingKV struct {
	*storage.MemoryKV
	armed bool
}

func (kv *articlesFailingKV) Put(ctx context.Context, key string, value []byte) error {
	if kv.armed && key == storage.ArticlesKey {
		return errDisk
	}
	return kv.MemoryKV.Put(ctx, key, value)
}

func TestRemoveFeedPartialWriteLeavesNoOrphans(t *testing.T) {
	ctx := context.Background()
	kv := &articlesFailingKV{MemoryKV: storage.NewMemoryKV(0)}
	backend := storage.New(kv, slog.Default())
	s := New(backend, testSeeder, slog.Default())
	t.Cleanup(s.Close)

	if err := s.InitializeFromStorage(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	kv.armed = true
	if err := s.RemoveFeed(ctx, "feed-1"); !apperror.Is(err, apperror.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if _, ok := s.Feed("feed-1"); !ok {
		t.Fatalf("expected feed-1 to be restored in memory")
	}

	feeds, _ := backend.GetFeeds(ctx)
	live := make(map[string]bool, len(feeds))
	for _, f := range feeds {
		live[f.ID] = true
	}

	articles, _ := backend.GetArticles(ctx)
	for _, a := range articles {
		if !live[a.FeedID] {
			t.Fatalf("stored article %s references missing feed %s", a.ID, a.FeedID)
		}
	}
}

func TestAddArticlesDedupAndCounts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	replaced := testArticle("a1", "feed-1", true)
	replaced.Title = "Replaced"

	err := s.AddArticles(ctx, []domain.Article{
		replaced,
		testArticle("a4", "feed-2", false),
		testArticle("a4", "feed-2", false),
	})
	if err != nil {
		t.Fatalf("add articles: %v", err)
	}

	articles := s.Articles()
	if len(articles) != 4 {
		t.Fatalf("expected 4 articles, got %d", len(articles))
	}
	seen := make(map[string]bool)
	for _, a := range articles {
		if seen[a.ID] {
			t.Fatalf("duplicate article id %s", a.ID)
		}
		seen[a.ID] = true
	}

	got, _ := s.Article("a1")
	if got.Title != "Replaced" {
		t.Fatalf("expected last write to win, got %q", got.Title)
	}

	counts := unreadCounts(s.Feeds())
	if counts["feed-1"] != 0 || counts["feed-2"] != 2 {
		t.Fatalf("unexpected unread counts: %v", counts)
	}
	checkUnreadCounts(t, s)
}

func TestAddArticlesFailureRollsBack(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	before := s.Snapshot()

	backend.failOn("SaveArticles", true)

	err := s.AddArticles(ctx, []domain.Article{testArticle("a9", "feed-1", false)})
	if !apperror.Is(err, apperror.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if after := s.Snapshot(); !reflect.DeepEqual(after, before) {
		t.Fatalf("expected state to be rolled back\nbefore: %+v\nafter:  %+v", before, after)
	}
	if _, ok := s.Article("a9"); ok {
		t.Fatalf("rolled back article is still present")
	}
}

func TestAddArticlesFailureRestoresOverwrittenArticle(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()
	before := s.Snapshot()
	original, _ := s.Article("a1")

	backend.failOn("SaveArticles", true)

	overwrite := testArticle("a1", "feed-1", true)
	overwrite.Title = "Overwritten"
	overwrite.Content = "changed"

	err := s.AddArticles(ctx, []domain.Article{overwrite, testArticle("a9", "feed-2", false)})
	if !apperror.Is(err, apperror.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	if after := s.Snapshot(); !reflect.DeepEqual(after, before) {
		t.Fatalf("expected state to be rolled back\nbefore: %+v\nafter:  %+v", before, after)
	}
	if got, _ := s.Article("a1"); got != original {
		t.Fatalf("expected a1 to be restored to %+v, got %+v", original, got)
	}

	stored, _ := backend.GetArticles(ctx)
	for _, a := range stored {
		if a.ID == "a1" && a.Title != original.Title {
			t.Fatalf("stored a1 changed to %q", a.Title)
		}
	}
}

func TestMarkAsRead(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	s.MarkAsRead(ctx, "a1")

	a, _ := s.Article("a1")
	if !a.IsRead {
		t.Fatalf("expected article to be read")
	}
	feed, _ := s.Feed("feed-1")
	if feed.UnreadCount != 0 {
		t.Fatalf("expected unread count 0, got %d", feed.UnreadCount)
	}

	stored, _ := backend.GetArticles(ctx)
	for _, sa := range stored {
		if sa.ID == "a1" && !sa.IsRead {
			t.Fatalf("read state was not saved")
		}
	}

	// Marking twice is harmless.
	s.MarkAsRead(ctx, "a1")
	checkUnreadCounts(t, s)
}

func TestMarkAsReadFailureReverts(t *testing.T) {
	s, backend := newTestStore(t)
	backend.failOn("UpdateArticle", true)

	s.MarkAsRead(context.Background(), "a1")

	a, _ := s.Article("a1")
	if a.IsRead {
		t.Fatalf("expected read flag to be reverted")
	}
	feed, _ := s.Feed("feed-1")
	if feed.UnreadCount != 1 {
		t.Fatalf("expected unread count 1, got %d", feed.UnreadCount)
	}
}

func TestUpdateUnreadCountsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.UpdateUnreadCounts(ctx)
	first := unreadCounts(s.Feeds())
	s.UpdateUnreadCounts(ctx)
	second := unreadCounts(s.Feeds())

	for id, n := range first {
		if second[id] != n {
			t.Fatalf("feed %s: %d then %d", id, n, second[id])
		}
	}
	checkUnreadCounts(t, s)
}

func TestUpdateUnreadCountsKeepsCountsOnFailure(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	backend.failOn("UpdateFeed", true)

	if err := s.AddArticles(ctx, []domain.Article{testArticle("a5", "feed-2", false)}); err != nil {
		t.Fatalf("add articles must succeed when only counts fail to save: %v", err)
	}

	feed, _ := s.Feed("feed-2")
	if feed.UnreadCount != 2 {
		t.Fatalf("expected recomputed count 2 in memory, got %d", feed.UnreadCount)
	}

	stored, _ := backend.GetFeeds(ctx)
	if unreadCounts(stored)["feed-2"] != 1 {
		t.Fatalf("expected stored count to stay 1, got %v", unreadCounts(stored))
	}
}

func TestCountUnreadFromScratch(t *testing.T) {
	feeds := []domain.Feed{{ID: "f1", UnreadCount: 99}, {ID: "f2", UnreadCount: 99}}
	articles := []domain.Article{
		{ID: "a1", FeedID: "f1"},
		{ID: "a2", FeedID: "f1", IsRead: true},
		{ID: "a3", FeedID: "orphan"},
	}

	got := unreadCounts(countUnread(feeds, articles))
	if got["f1"] != 1 || got["f2"] != 0 {
		t.Fatalf("unexpected counts: %v", got)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s, _ := newTestStore(t)

	calls := 0
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		calls++
		snap.Feeds[0].Title = "changed by listener"
	})

	s.SetActiveFeedID("feed-2")
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}
	if f, _ := s.Feed(s.Feeds()[0].ID); f.Title == "changed by listener" {
		t.Fatalf("listener modified store state")
	}

	unsubscribe()
	unsubscribe()
	s.SetActiveFeedID("feed-1")
	if calls != 1 {
		t.Fatalf("expected no notification after unsubscribe, got %d", calls)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s, _ := newTestStore(t)

	feeds := s.Feeds()
	feeds[0].Title = "mutated"
	articles := s.Articles()
	articles[0].IsRead = true

	if s.Feeds()[0].Title == "mutated" {
		t.Fatalf("Feeds returned shared slice")
	}
	if a, _ := s.Article(articles[0].ID); a.IsRead {
		t.Fatalf("Articles returned shared slice")
	}
}

func TestMutationsAfterClose(t *testing.T) {
	s, _ := newTestStore(t)
	s.Close()

	if err := s.AddFeed(context.Background(), testFeed("feed-3")); !errors.Is(err, queue.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
