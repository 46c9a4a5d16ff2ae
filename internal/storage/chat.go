package storage

import (
	"context"
	"slices"

	"feedshelf/internal/apperror"
	"feedshelf/internal/domain"
)

func (s *Storage) GetChatHistory(ctx context.Context, articleID string) (domain.ChatHistory, bool, error) {
	histories, err := load[domain.ChatHistory](ctx, s.kv, ChatHistoriesKey)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to get chat history",
			"error", err,
			"articleID", articleID)

		return domain.ChatHistory{}, false, apperror.Persistence("GetChatHistory", err)
	}

	i := slices.IndexFunc(histories, func(h domain.ChatHistory) bool { return h.ArticleID == articleID })
	if i < 0 {
		return domain.ChatHistory{}, false, nil
	}

	return histories[i], true, nil
}

// SaveChatHistory replaces the whole history of the article or appends it.
func (s *Storage) SaveChatHistory(ctx context.Context, history domain.ChatHistory) error {
	histories, err := load[domain.ChatHistory](ctx, s.kv, ChatHistoriesKey)
	if err != nil {
		return s.persistenceError(ctx, "SaveChatHistory", history.ArticleID, err)
	}

	history = utcChatHistory(history)
	i := slices.IndexFunc(histories, func(h domain.ChatHistory) bool { return h.ArticleID == history.ArticleID })
	if i >= 0 {
		histories[i] = history
	} else {
		histories = append(histories, history)
	}

	if err = save(ctx, s.kv, ChatHistoriesKey, histories); err != nil {
		return s.persistenceError(ctx, "SaveChatHistory", history.ArticleID, err)
	}

	return nil
}

func (s *Storage) DeleteChatHistory(ctx context.Context, articleID string) error {
	histories, err := load[domain.ChatHistory](ctx, s.kv, ChatHistoriesKey)
	if err != nil {
		return s.persistenceError(ctx, "DeleteChatHistory", articleID, err)
	}

	kept := slices.DeleteFunc(histories, func(h domain.ChatHistory) bool { return h.ArticleID == articleID })

	if err = save(ctx, s.kv, ChatHistoriesKey, kept); err != nil {
		return s.persistenceError(ctx, "DeleteChatHistory", articleID, err)
	}

	return nil
}
