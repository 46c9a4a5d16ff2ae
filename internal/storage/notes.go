package storage

import (
	"context"
	"slices"

	"feedshelf/internal/apperror"
	"feedshelf/internal/domain"
)

func (s *Storage) GetNote(ctx context.Context, articleID string) (domain.Note, bool, error) {
	notes, err := load[domain.Note](ctx, s.kv, NotesKey)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to get note",
			"error", err,
			"articleID", articleID)

		return domain.Note{}, false, apperror.Persistence("GetNote", err)
	}

	i := slices.IndexFunc(notes, func(n domain.Note) bool { return n.ArticleID == articleID })
	if i < 0 {
		return domain.Note{}, false, nil
	}

	return notes[i], true, nil
}

// SaveNote replaces the note of the same article or appends it.
func (s *Storage) SaveNote(ctx context.Context, note domain.Note) error {
	notes, err := load[domain.Note](ctx, s.kv, NotesKey)
	if err != nil {
		return s.persistenceError(ctx, "SaveNote", note.ArticleID, err)
	}

	note = utcNote(note)
	if i := slices.IndexFunc(notes, func(n domain.Note) bool { return n.ArticleID == note.ArticleID }); i >= 0 {
		notes[i] = note
	} else {
		notes = append(notes, note)
	}

	if err = save(ctx, s.kv, NotesKey, notes); err != nil {
		return s.persistenceError(ctx, "SaveNote", note.ArticleID, err)
	}

	return nil
}

func (s *Storage) DeleteNote(ctx context.Context, articleID string) error {
	notes, err := load[domain.Note](ctx, s.kv, NotesKey)
	if err != nil {
		return s.persistenceError(ctx, "DeleteNote", articleID, err)
	}

	kept := slices.DeleteFunc(notes, func(n domain.Note) bool { return n.ArticleID == articleID })

	if err = save(ctx, s.kv, NotesKey, kept); err != nil {
		return s.persistenceError(ctx, "DeleteNote", articleID, err)
	}

	return nil
}
