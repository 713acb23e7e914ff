package kv

import (
	"io"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/storage"
)

var (
	_ storage.ProgressStore    = (*ProgressStore)(nil)
	_ storage.AchievementStore = (*AchievementStore)(nil)
)

// ProgressStore keeps the user's UserProgress under a single key.
type ProgressStore struct {
	*cell[models.UserProgress]
}

// AchievementStore keeps the unlocked achievements under a single key.
type AchievementStore struct {
	*cell[models.Unlocks]
}

// Store bundles the key-value partitions that live in one badger database.
type Store struct {
	db           *DB
	progress     *ProgressStore
	achievements *AchievementStore
}

// Open opens the badger database and its partitions.
func Open(cfg Config) (*Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

// NewStore builds the partitions over an open database.
func NewStore(db *DB) *Store {
	return &Store{
		db: db,
		progress: &ProgressStore{newCell(db, constants.ProgressKey,
			models.DefaultUserProgress, normalizeProgress)},
		achievements: &AchievementStore{newCell(db, constants.AchievementsKey,
			func() models.Unlocks { return models.Unlocks{} }, normalizeUnlocks)},
	}
}

func normalizeProgress(p models.UserProgress) models.UserProgress {
	if p.Level < constants.StartingLevel {
		p.Level = constants.StartingLevel
	}
	p.XPForNextLevel = constants.XPPerLevel
	return p
}

func normalizeUnlocks(u models.Unlocks) models.Unlocks {
	if u == nil {
		return models.Unlocks{}
	}
	return u
}

func (s *Store) Progress() *ProgressStore {
	return s.progress
}

func (s *Store) Achievements() *AchievementStore {
	return s.achievements
}

func (s *Store) DB() *DB {
	return s.db
}

// Restore replaces both partitions with the contents of an Export and
// notifies their observers.
func (s *Store) Restore(r io.Reader) error {
	if err := s.db.Import(r); err != nil {
		return errors.StorageFailure("restore progress", err)
	}
	s.progress.changes.Broadcast()
	s.achievements.changes.Broadcast()
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
