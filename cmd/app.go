package main

import (
	"context"
	"log/slog"

	"feedshelf/internal/assistant"
	"feedshelf/internal/chat"
	"feedshelf/internal/config"
	"feedshelf/internal/database"
	"feedshelf/internal/feed"
	"feedshelf/internal/notes"
	"feedshelf/internal/reader"
	"feedshelf/internal/seed"
	"feedshelf/internal/storage"
	"feedshelf/internal/store"
)

// app holds every service a command may need.
type app struct {
	closeKV func() error
	storage *storage.Storage
	store   *store.Store
	reader  *reader.Reader
	notes   *notes.Service
	chat    *chat.Service
	log     *slog.Logger
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	kv, closeKV, err := initKV(ctx, cfg, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return nil, err
	}
	log.DebugContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	st := storage.New(kv, log)

	s := store.New(st, seed.Entities, log)
	if err = s.InitializeFromStorage(ctx); err != nil {
		s.Close()
		_ = closeKV()

		return nil, err
	}

	fetcher, err := feed.NewFetcher(feed.Options{
		MinLatency: cfg.MockLatencyMin,
		MaxLatency: cfg.MockLatencyMax,
	}, log)
	if err != nil {
		s.Close()
		_ = closeKV()

		return nil, err
	}

	return &app{
		closeKV: closeKV,
		storage: st,
		store:   s,
		reader:  reader.New(fetcher, s, reader.Options{MaxConcurrentFetches: cfg.MaxConcurrentFetches}, log),
		notes:   notes.NewService(st, log),
		chat:    chat.NewService(st, initAssistant(ctx, cfg, log), log),
		log:     log,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	a.store.Close()

	if err := a.closeKV(); err != nil {
		a.log.ErrorContext(ctx, "Failed to close db",
			"error", err)
	}
}

func initKV(ctx context.Context, cfg config.Config, log *slog.Logger) (storage.KV, func() error, error) {
	if cfg.DBPath == config.MemoryDBPath {
		log.InfoContext(ctx, "Using in-memory storage, data is lost on exit",
			"quotaBytes", cfg.StorageQuotaBytes)

		return storage.NewMemoryKV(cfg.StorageQuotaBytes), func() error { return nil }, nil
	}

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		return nil, nil, err
	}

	return db, db.Close, nil
}

func initAssistant(ctx context.Context, cfg config.Config, log *slog.Logger) assistant.Assistant {
	if cfg.OpenAIAPIKey == "" {
		log.DebugContext(ctx, "OPENAI_API_KEY is missing so keyword assistant will be used",
			"envVar", "OPENAI_API_KEY")

		return assistant.NewKeyword(assistant.DefaultKeywordLatency)
	}

	log.DebugContext(ctx, "OpenAI assistant is initialized",
		"provider", "openai",
		"cacheEntries", assistant.DefaultCacheEntries,
		"cacheTTL", assistant.DefaultCacheTTL.String())

	return assistant.NewCached(
		assistant.NewOpenAI(cfg.OpenAIAPIKey),
		assistant.DefaultCacheEntries,
		assistant.DefaultCacheTTL,
	)
}
