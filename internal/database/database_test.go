package database

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"feedshelf/internal/domain"
	"feedshelf/internal/storage"
)

func newTestDatabase(t *testing.T, dbPath string) *Database {
	t.Helper()

	db, err := New(context.Background(), dbPath, slog.Default())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, filepath.Join(t.TempDir(), "test.sqlite"))

	if _, ok, err := db.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := db.Put(ctx, "k", []byte(`[1]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put(ctx, "k", []byte(`[1,2]`)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	value, ok, err := db.Get(ctx, "k")
	if err != nil || !ok || string(value) != `[1,2]` {
		t.Fatalf("unexpected value %q ok=%v err=%v", value, ok, err)
	}

	if err = db.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ = db.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")

	db, err := New(ctx, dbPath, slog.Default())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	st := storage.New(db, slog.Default())
	if err = st.SaveFeed(ctx, domain.Feed{ID: "f1", Title: "Feed", URL: "https://example.com/rss"}); err != nil {
		t.Fatalf("save feed: %v", err)
	}
	_ = db.Close()

	reopened := newTestDatabase(t, dbPath)
	feeds, err := storage.New(reopened, slog.Default()).GetFeeds(ctx)
	if err != nil {
		t.Fatalf("get feeds: %v", err)
	}
	if len(feeds) != 1 || feeds[0].ID != "f1" {
		t.Fatalf("unexpected feeds after reopen: %+v", feeds)
	}
}
