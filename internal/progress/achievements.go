package progress

import (
	"context"
	"slices"
	"time"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/storage"
	"github.com/julianstephens/horizon/internal/utils"
)

// Achievement ids
const (
	FirstCompletion = "first_completion"
	Streak3         = "streak_3"
	Streak7         = "streak_7"
	Streak30        = "streak_30"
	Level5          = "level_5"
	Level10         = "level_10"
	Level20         = "level_20"
)

// Catalog is the fixed list of achievements, in display order.
var Catalog = []models.Achievement{
	{ID: FirstCompletion, Title: "First Steps", Description: "Complete your first habit"},
	{ID: Streak3, Title: "On Fire", Description: "Maintain a 3-day streak"},
	{ID: Streak7, Title: "Week Warrior", Description: "Maintain a 7-day streak"},
	{ID: Streak30, Title: "Month Master", Description: "Maintain a 30-day streak"},
	{ID: Level5, Title: "Rising Star", Description: "Reach level 5"},
	{ID: Level10, Title: "Habit Hero", Description: "Reach level 10"},
	{ID: Level20, Title: "Legend", Description: "Reach level 20"},
}

// Rule unlocks an achievement when Met holds for the user's progress.
type Rule struct {
	ID  string
	Met func(models.UserProgress) bool
}

func streakAtLeast(days int) func(models.UserProgress) bool {
	return func(p models.UserProgress) bool { return p.CurrentStreakDays >= days }
}

func levelAtLeast(level int) func(models.UserProgress) bool {
	return func(p models.UserProgress) bool { return p.Level >= level }
}

// DefaultRules has no rule for first_completion.
var DefaultRules = []Rule{
	{ID: Streak3, Met: streakAtLeast(3)},
	{ID: Streak7, Met: streakAtLeast(7)},
	{ID: Streak30, Met: streakAtLeast(30)},
	{ID: Level5, Met: levelAtLeast(5)},
	{ID: Level10, Met: levelAtLeast(10)},
	{ID: Level20, Met: levelAtLeast(20)},
}

// FirstCompletionRule unlocks first_completion once any completion XP has
// been earned. It is opt-in.
var FirstCompletionRule = Rule{
	ID:  FirstCompletion,
	Met: func(p models.UserProgress) bool { return p.TotalXP >= constants.XPPerCompletion },
}

// Evaluate returns the ids of rules that hold for p and are not yet in
// unlocked, sorted.
func Evaluate(rules []Rule, p models.UserProgress, unlocked models.Unlocks) []string {
	var ids []string
	for _, r := range rules {
		if unlocked.Has(r.ID) || slices.Contains(ids, r.ID) {
			continue
		}
		if r.Met(p) {
			ids = append(ids, r.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// MergeCatalog returns the catalog with unlock times filled in from unlocks.
func MergeCatalog(unlocks models.Unlocks) []models.Achievement {
	out := make([]models.Achievement, len(Catalog))
	for i, a := range Catalog {
		if at, ok := unlocks[a.ID]; ok {
			a.UnlockedAt = &at
		}
		out[i] = a
	}
	return out
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (models.Achievement, bool) {
	for _, a := range Catalog {
		if a.ID == id {
			return a, true
		}
	}
	return models.Achievement{}, false
}

// Unlocker evaluates rules and persists newly unlocked achievements.
type Unlocker struct {
	store storage.AchievementStore
	clock utils.Clock
	rules []Rule
}

func NewUnlocker(store storage.AchievementStore, clock utils.Clock, rules []Rule) *Unlocker {
	if rules == nil {
		rules = DefaultRules
	}
	return &Unlocker{store: store, clock: clock, rules: rules}
}

// CheckAndUnlock adds every achievement whose rule holds for p to the stored
// set and returns the ids that were newly unlocked. Ids already unlocked keep
// their original unlock time.
func (u *Unlocker) CheckAndUnlock(ctx context.Context, p models.UserProgress) ([]string, error) {
	var added []string
	_, err := u.store.Mutate(ctx, func(cur models.Unlocks) (models.Unlocks, error) {
		added = Evaluate(u.rules, p, cur)
		if len(added) == 0 {
			return cur, nil
		}
		next := cur.Clone()
		now := u.clock.Now().UTC().Truncate(time.Second)
		for _, id := range added {
			next[id] = now
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// Achievements returns the catalog with unlock times.
func (u *Unlocker) Achievements(ctx context.Context) ([]models.Achievement, error) {
	unlocks, err := u.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return MergeCatalog(unlocks), nil
}
