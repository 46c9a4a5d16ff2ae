// Package chat keeps the assistant conversation of each article.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"feedshelf/internal/apperror"
	"feedshelf/internal/assistant"
	"feedshelf/internal/domain"

	"github.com/google/uuid"
)

type Store interface {
	GetChatHistory(ctx context.Context, articleID string) (domain.ChatHistory, bool, error)
	SaveChatHistory(ctx context.Context, history domain.ChatHistory) error
	DeleteChatHistory(ctx context.Context, articleID string) error
}

type Service struct {
	store     Store
	assistant assistant.Assistant
	log       *slog.Logger
	now       func() time.Time

	// mu serializes read-modify-write cycles on the histories collection.
	mu sync.Mutex
}

func NewService(store Store, a assistant.Assistant, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		assistant: a,
		log:       log,
		now:       time.Now,
	}
}

// History returns the messages about the article, oldest first.
func (s *Service) History(ctx context.Context, articleID string) ([]domain.ChatMessage, error) {
	history, _, err := s.store.GetChatHistory(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("get chat history: %w", err)
	}

	return history.Messages, nil
}

// Send saves the user's message, asks the assistant and saves its reply.
// When the assistant fails the user message stays in the history and an
// assistant error is returned.
func (s *Service) Send(
	ctx context.Context,
	articleID string,
	articleContext string,
	message string,
) (domain.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.ChatMessage{}, apperror.Validation("SendChatMessage", "message is required")
	}

	if err := s.append(ctx, articleID, s.newMessage(domain.RoleUser, message)); err != nil {
		return domain.ChatMessage{}, err
	}

	return s.reply(ctx, articleID, articleContext, message)
}

// Retry asks the assistant again about the last user message when it has
// no reply yet.
func (s *Service) Retry(ctx context.Context, articleID, articleContext string) (domain.ChatMessage, error) {
	history, _, err := s.store.GetChatHistory(ctx, articleID)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("get chat history: %w", err)
	}

	n := len(history.Messages)
	if n == 0 || history.Messages[n-1].Role != domain.RoleUser {
		return domain.ChatMessage{}, apperror.Validation("RetryChatMessage", "there is no unanswered message")
	}

	return s.reply(ctx, articleID, articleContext, history.Messages[n-1].Content)
}

// Clear deletes the conversation about the article.
func (s *Service) Clear(ctx context.Context, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteChatHistory(ctx, articleID); err != nil {
		return fmt.Errorf("delete chat history: %w", err)
	}

	return nil
}

func (s *Service) reply(ctx context.Context, articleID, articleContext, message string) (domain.ChatMessage, error) {
	answer, err := s.assistant.Reply(ctx, assistant.Request{
		Message:        message,
		ArticleContext: articleContext,
	})
	if err != nil {
		s.log.WarnContext(ctx, "Failed to get assistant reply",
			"error", err,
			"articleID", articleID)

		return domain.ChatMessage{}, apperror.Assistant("SendChatMessage", err)
	}

	reply := s.newMessage(domain.RoleAssistant, answer)
	if err = s.append(ctx, articleID, reply); err != nil {
		return domain.ChatMessage{}, err
	}

	return reply, nil
}

func (s *Service) newMessage(role domain.Role, content string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        "msg-" + uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
}

func (s *Service) append(ctx context.Context, articleID string, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok, err := s.store.GetChatHistory(ctx, articleID)
	if err != nil {
		return fmt.Errorf("get chat history: %w", err)
	}

	if !ok {
		history = domain.ChatHistory{
			ID:        "chat-" + uuid.NewString(),
			ArticleID: articleID,
			CreatedAt: msg.Timestamp,
		}
	}

	history = history.Clone()
	history.Messages = append(history.Messages, msg)
	history.UpdatedAt = msg.Timestamp

	if err = s.store.SaveChatHistory(ctx, history); err != nil {
		return fmt.Errorf("save chat history: %w", err)
	}

	return nil
}
