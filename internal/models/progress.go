package models

import (
	"time"

	"github.com/julianstephens/horizon/internal/constants"
)

// UserProgress is the aggregate gamification state of the user.
type UserProgress struct {
	Level             int  `json:"level"`
	CurrentXP         int  `json:"current_xp"`
	XPForNextLevel    int  `json:"xp_for_next_level"`
	TotalXP           int  `json:"total_xp"`
	CurrentStreakDays int  `json:"current_streak_days"`
	LongestStreakDays int  `json:"longest_streak_days"`
	LastActiveDay     *Day `json:"last_active_day,omitempty"`
}

// DefaultUserProgress is the state before any activity.
func DefaultUserProgress() UserProgress {
	return UserProgress{
		Level:          constants.StartingLevel,
		XPForNextLevel: constants.XPPerLevel,
	}
}

// Achievement is a catalog entry. UnlockedAt is nil until the achievement is
// unlocked and never changes afterwards.
type Achievement struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

func (a Achievement) Unlocked() bool {
	return a.UnlockedAt != nil
}

// Unlocks maps unlocked achievement ids to their unlock time.
type Unlocks map[string]time.Time

// Has reports whether id is unlocked.
func (u Unlocks) Has(id string) bool {
	_, ok := u[id]
	return ok
}

// Clone returns a copy that can be modified without touching u.
func (u Unlocks) Clone() Unlocks {
	out := make(Unlocks, len(u))
	for id, at := range u {
		out[id] = at
	}
	return out
}

// Statistics summarizes habits and progress for the statistics view.
type Statistics struct {
	ActiveHabits         int `json:"active_habits"`
	TotalCompletions     int `json:"total_completions"`
	TotalStreakDays      int `json:"total_streak_days"`
	UnlockedAchievements int `json:"unlocked_achievements"`
	TotalAchievements    int `json:"total_achievements"`
	Level                int `json:"level"`
	TotalXP              int `json:"total_xp"`
	CurrentStreakDays    int `json:"current_streak_days"`
	LongestStreakDays    int `json:"longest_streak_days"`
}
