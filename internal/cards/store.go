// Package cards persists the saved flashcards. The whole collection is one
// JSON array rewritten on every mutation; at the expected scale (hundreds of
// cards) a wholesale snapshot is simpler and safer than incremental writes.
package cards

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lingolens/internal/common/fsutil"
	"lingolens/pkg/types"
)

type Store struct {
	log       zerolog.Logger
	path      string
	imagesDir string

	mu    sync.Mutex
	cards []types.LearnCard
}

// Open loads the snapshot at path, creating parent directories as needed.
// A missing or corrupt file loads as an empty collection; the user's next
// save rewrites a valid snapshot.
func Open(path, imagesDir string, log zerolog.Logger) (*Store, error) {
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := fsutil.EnsureDir(imagesDir); err != nil {
		return nil, err
	}
	s := &Store{log: log, path: path, imagesDir: imagesDir}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var loaded []types.LearnCard
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("card snapshot unreadable, starting empty")
		return s, nil
	}
	s.cards = loaded
	return s, nil
}

// List returns the cards newest first. The slice is a copy.
func (s *Store) List() []types.LearnCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.LearnCard, len(s.cards))
	copy(out, s.cards)
	return out
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

// CreateCard copies the image into durable storage and prepends a new card.
// The source image may live in temp space; the card owns its own copy.
func (s *Store) CreateCard(imagePath, sourceText, targetText, targetLang string) (types.LearnCard, error) {
	now := time.Now()
	s.mu.Lock()
	id := s.uniqueIDLocked(now)
	s.mu.Unlock()

	dest := filepath.Join(s.imagesDir, id+filepath.Ext(imagePath))
	if err := fsutil.CopyFile(imagePath, dest); err != nil {
		return types.LearnCard{}, fmt.Errorf("copy card image: %w", err)
	}

	card := types.LearnCard{
		ID:                 id,
		ImagePath:          dest,
		SourceText:         sourceText,
		TargetText:         targetText,
		TargetLanguageCode: targetLang,
		CreatedAt:          now,
	}
	if err := s.Add(card); err != nil {
		fsutil.RemoveQuiet(dest)
		return types.LearnCard{}, err
	}
	return card, nil
}

// Add prepends card and persists the snapshot. Mutation and persistence
// happen under one lock so the on-disk order always matches memory.
func (s *Store) Add(card types.LearnCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append([]types.LearnCard{card}, s.cards...)
	if err := s.persistLocked(); err != nil {
		s.cards = s.cards[1:]
		return err
	}
	return nil
}

// Delete removes the card's metadata unconditionally and then attempts to
// remove its image; a failed image removal is logged, never surfaced, so a
// stale file can't make a card undeletable.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	idx := -1
	for i, c := range s.cards {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return notFoundError{id: id}
	}
	image := s.cards[idx].ImagePath
	s.cards = append(s.cards[:idx], s.cards[idx+1:]...)
	err := s.persistLocked()
	s.mu.Unlock()

	if image != "" && !fsutil.RemoveQuiet(image) {
		s.log.Warn().Str("card", id).Str("image", image).Msg("card image not removed")
	}
	return err
}

func (s *Store) persistLocked() error {
	raw, err := json.MarshalIndent(s.cards, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

// uniqueIDLocked derives a card id from the creation timestamp so ids sort
// in creation order, suffixing on collision within the same millisecond.
func (s *Store) uniqueIDLocked(now time.Time) string {
	base := "card-" + now.Format("20060102-150405.000")
	id := base
	for n := 1; s.hasIDLocked(id); n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

func (s *Store) hasIDLocked(id string) bool {
	for _, c := range s.cards {
		if c.ID == id {
			return true
		}
	}
	return false
}
