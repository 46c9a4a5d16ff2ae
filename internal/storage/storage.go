// Package storage persists entities as JSON arrays under fixed keys of a KV.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedshelf/internal/domain"

	jsoniter "github.com/json-iterator/go"
)

const (
	FeedsKey         = "rss_reader_feeds"
	ArticlesKey      = "rss_reader_articles"
	NotesKey         = "rss_reader_notes"
	ChatHistoriesKey = "rss_reader_chat_histories"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Storage is the backing store of feeds, articles, notes and chat histories.
// Every write reads the whole collection, changes it and writes it back,
// so callers must not issue concurrent writes to the same collection.
type Storage struct {
	kv  KV
	log *slog.Logger
}

func New(kv KV, log *slog.Logger) *Storage {
	return &Storage{kv: kv, log: log}
}

func load[T any](ctx context.Context, kv KV, key string) ([]T, error) {
	data, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}

	var items []T
	if err = json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	return items, nil
}

// save writes items under key. An empty collection removes the key.
func save[T any](ctx context.Context, kv KV, key string, items []T) error {
	if len(items) == 0 {
		if err := kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err = kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	return nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}

func utcFeed(f domain.Feed) domain.Feed {
	f.LastFetchedAt = utc(f.LastFetchedAt)
	f.CreatedAt = utc(f.CreatedAt)
	f.UpdatedAt = utc(f.UpdatedAt)
	return f
}

func utcArticle(a domain.Article) domain.Article {
	a.PublishedAt = utc(a.PublishedAt)
	a.CreatedAt = utc(a.CreatedAt)
	return a
}

func utcNote(n domain.Note) domain.Note {
	n = n.Clone()
	n.CreatedAt = utc(n.CreatedAt)
	n.UpdatedAt = utc(n.UpdatedAt)
	for i := range n.Items {
		n.Items[i].CreatedAt = utc(n.Items[i].CreatedAt)
		n.Items[i].UpdatedAt = utc(n.Items[i].UpdatedAt)
	}
	return n
}

func utcChatHistory(h domain.ChatHistory) domain.ChatHistory {
	h = h.Clone()
	h.CreatedAt = utc(h.CreatedAt)
	h.UpdatedAt = utc(h.UpdatedAt)
	for i := range h.Messages {
		h.Messages[i].Timestamp = utc(h.Messages[i].Timestamp)
	}
	return h
}
