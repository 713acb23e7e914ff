package progress

import (
	"context"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/storage"
)

// ApplyXP adds amount to the total and to the current level's XP, carrying
// every full 100 XP into a new level.
func ApplyXP(p models.UserProgress, amount int) (models.UserProgress, error) {
	if amount < 0 {
		return p, errors.InvalidArgument("xp amount must not be negative, got %d", amount)
	}

	p.XPForNextLevel = constants.XPPerLevel
	p.TotalXP += amount
	p.CurrentXP += amount
	for p.CurrentXP >= p.XPForNextLevel {
		p.CurrentXP -= p.XPForNextLevel
		p.Level++
	}
	return p, nil
}

// Ledger persists XP awards.
type Ledger struct {
	store storage.ProgressStore
}

func NewLedger(store storage.ProgressStore) *Ledger {
	return &Ledger{store: store}
}

// AddXP awards amount XP in one atomic update and returns the new progress
// together with the number of levels gained.
func (l *Ledger) AddXP(ctx context.Context, amount int) (models.UserProgress, int, error) {
	var gained int
	p, err := l.store.Mutate(ctx, func(cur models.UserProgress) (models.UserProgress, error) {
		next, err := ApplyXP(cur, amount)
		if err != nil {
			return cur, err
		}
		gained = next.Level - cur.Level
		return next, nil
	})
	if err != nil {
		return models.UserProgress{}, 0, err
	}
	return p, gained, nil
}
