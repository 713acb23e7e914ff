package storage

import (
	"context"

	"github.com/julianstephens/horizon/internal/models"
)

// HabitStore persists habits and their completions.
type HabitStore interface {
	InsertHabit(ctx context.Context, habit models.Habit) (models.Habit, error)
	UpdateHabit(ctx context.Context, habit models.Habit) error
	GetHabit(ctx context.Context, id string) (models.Habit, error)
	ListHabits(ctx context.Context, includeArchived bool) ([]models.Habit, error)
	ArchiveHabit(ctx context.Context, id string) error
	UnarchiveHabit(ctx context.Context, id string) error

	GetCompletionForDate(ctx context.Context, habitID string, day models.Day) (*models.Completion, error)
	InsertCompletion(ctx context.Context, completion models.Completion) (models.Completion, error)
	DeleteCompletion(ctx context.Context, id string) error
	ListCompletionDays(ctx context.Context, habitID string) ([]models.Day, error)
	CountCompletions(ctx context.Context) (int, error)
	// ToggleCompletion creates the completion for (habitID, day) if absent and
	// deletes it if present, in one transaction. It reports whether the
	// completion exists afterwards.
	ToggleCompletion(ctx context.Context, habitID string, day models.Day) (bool, error)

	// ObserveHabits emits the active habits now and after every habit change.
	ObserveHabits(ctx context.Context) <-chan []models.Habit
	// ObserveCompletions emits the habit's completion days now and after
	// every completion change.
	ObserveCompletions(ctx context.Context, habitID string) <-chan []models.Day
}

// Provider is a relational HabitStore with a lifecycle.
type Provider interface {
	HabitStore

	// Lifecycle
	Init(ctx context.Context) error
	Load(ctx context.Context) error
	Close() error

	// Diagnostics
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (current, latest int, err error)
	DuplicateCompletions(ctx context.Context) (int, error)

	// Utils
	GetConfigPath() string
}

// ProgressStore holds the single UserProgress value.
type ProgressStore interface {
	Load(ctx context.Context) (models.UserProgress, error)
	// Mutate applies transform to the stored value in one atomic
	// read-modify-write and returns the stored result. An error from
	// transform aborts the write and is returned unchanged.
	Mutate(ctx context.Context, transform func(models.UserProgress) (models.UserProgress, error)) (models.UserProgress, error)
	Observe(ctx context.Context) <-chan models.UserProgress
}

// AchievementStore holds the set of unlocked achievements.
type AchievementStore interface {
	Load(ctx context.Context) (models.Unlocks, error)
	Mutate(ctx context.Context, transform func(models.Unlocks) (models.Unlocks, error)) (models.Unlocks, error)
	Observe(ctx context.Context) <-chan models.Unlocks
}
