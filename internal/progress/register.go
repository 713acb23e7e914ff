package progress

import (
	"context"

	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/storage"
	"github.com/julianstephens/horizon/internal/utils"
)

// RegisterDay records activity on today in the consecutive-day register.
// Calling it again on the same day leaves the progress unchanged.
func RegisterDay(p models.UserProgress, today models.Day) models.UserProgress {
	switch {
	case p.LastActiveDay == nil:
		p.CurrentStreakDays = 1
	case today == *p.LastActiveDay:
		// already counted
	case today-*p.LastActiveDay == 1:
		p.CurrentStreakDays++
	default:
		p.CurrentStreakDays = 1
	}

	p.LongestStreakDays = max(p.LongestStreakDays, p.CurrentStreakDays)
	last := today
	p.LastActiveDay = &last
	return p
}

// Register persists the consecutive-day register.
type Register struct {
	store storage.ProgressStore
	clock utils.Clock
}

func NewRegister(store storage.ProgressStore, clock utils.Clock) *Register {
	return &Register{store: store, clock: clock}
}

// RegisterDayWithCompletion marks the clock's current day as active.
func (r *Register) RegisterDayWithCompletion(ctx context.Context) (models.UserProgress, error) {
	today := utils.Today(r.clock)
	return r.store.Mutate(ctx, func(cur models.UserProgress) (models.UserProgress, error) {
		return RegisterDay(cur, today), nil
	})
}
