// Package notes keeps per-article notes. Each article has at most one note
// holding its items in the order they were added.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"feedshelf/internal/apperror"
	"feedshelf/internal/domain"

	"github.com/google/uuid"
)

type Store interface {
	GetNote(ctx context.Context, articleID string) (domain.Note, bool, error)
	SaveNote(ctx context.Context, note domain.Note) error
	DeleteNote(ctx context.Context, articleID string) error
}

type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time

	// mu serializes read-modify-write cycles on the notes collection.
	mu sync.Mutex
}

func NewService(store Store, log *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Get returns the note of the article. ok is false when it has none.
func (s *Service) Get(ctx context.Context, articleID string) (domain.Note, bool, error) {
	note, ok, err := s.store.GetNote(ctx, articleID)
	if err != nil {
		return domain.Note{}, false, fmt.Errorf("get note: %w", err)
	}

	return note, ok, nil
}

// AddItem appends an item to the article's note, creating the note with
// its first item.
func (s *Service) AddItem(
	ctx context.Context,
	articleID string,
	content string,
	quotedText string,
) (domain.NoteItem, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.NoteItem{}, apperror.Validation("AddNoteItem", "note content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok, err := s.store.GetNote(ctx, articleID)
	if err != nil {
		return domain.NoteItem{}, fmt.Errorf("get note: %w", err)
	}

	now := s.now().UTC()
	if !ok {
		note = domain.Note{
			ID:        "note-" + uuid.NewString(),
			ArticleID: articleID,
			CreatedAt: now,
		}
	}

	item := domain.NoteItem{
		ID:         "note-item-" + uuid.NewString(),
		Content:    content,
		QuotedText: strings.TrimSpace(quotedText),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	note = note.Clone()
	note.Items = append(note.Items, item)
	note.UpdatedAt = now

	if err = s.store.SaveNote(ctx, note); err != nil {
		return domain.NoteItem{}, fmt.Errorf("save note: %w", err)
	}

	s.log.DebugContext(ctx, "Note item is added",
		"articleID", articleID,
		"itemID", item.ID,
		"items", len(note.Items))

	return item, nil
}

// EditItem replaces the content of an item.
func (s *Service) EditItem(ctx context.Context, articleID, itemID, content string) (domain.NoteItem, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.NoteItem{}, apperror.Validation("EditNoteItem", "note content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	note, i, err := s.findItem(ctx, "EditNoteItem", articleID, itemID)
	if err != nil {
		return domain.NoteItem{}, err
	}

	now := s.now().UTC()
	note.Items[i].Content = content
	note.Items[i].UpdatedAt = now
	note.UpdatedAt = now

	if err = s.store.SaveNote(ctx, note); err != nil {
		return domain.NoteItem{}, fmt.Errorf("save note: %w", err)
	}

	return note.Items[i], nil
}

// DeleteItem removes an item. The note itself is deleted with its last item.
func (s *Service) DeleteItem(ctx context.Context, articleID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, i, err := s.findItem(ctx, "DeleteNoteItem", articleID, itemID)
	if err != nil {
		return err
	}

	note.Items = slices.Delete(note.Items, i, i+1)

	if len(note.Items) == 0 {
		if err = s.store.DeleteNote(ctx, articleID); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}

		s.log.DebugContext(ctx, "Note is deleted with its last item",
			"articleID", articleID)

		return nil
	}

	note.UpdatedAt = s.now().UTC()

	if err = s.store.SaveNote(ctx, note); err != nil {
		return fmt.Errorf("save note: %w", err)
	}

	return nil
}

func (s *Service) findItem(ctx context.Context, op, articleID, itemID string) (domain.Note, int, error) {
	note, ok, err := s.store.GetNote(ctx, articleID)
	if err != nil {
		return domain.Note{}, 0, fmt.Errorf("get note: %w", err)
	}
	if !ok {
		return domain.Note{}, 0, apperror.NotFound(op, "note", articleID)
	}

	i := slices.IndexFunc(note.Items, func(item domain.NoteItem) bool { return item.ID == itemID })
	if i < 0 {
		return domain.Note{}, 0, apperror.NotFound(op, "note item", itemID)
	}

	return note.Clone(), i, nil
}
