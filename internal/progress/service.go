package progress

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/logger"
	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/storage"
	"github.com/julianstephens/horizon/internal/utils"
	"github.com/julianstephens/horizon/internal/validation"
)

// ToggleResult describes the outcome of a completion toggle.
type ToggleResult struct {
	HabitID      string
	Day          models.Day
	Completed    bool
	XPAwarded    int
	LevelsGained int
	Progress     models.UserProgress
	Unlocked     []models.Achievement
}

// Rewarded reports whether the toggle earned anything worth announcing.
func (r ToggleResult) Rewarded() bool {
	return r.LevelsGained > 0 || len(r.Unlocked) > 0
}

// Listener is told about toggles that gained a level or unlocked achievements.
type Listener interface {
	ProgressChanged(ctx context.Context, result ToggleResult) error
}

// Options configures a Service.
type Options struct {
	Clock    utils.Clock
	Rules    []Rule
	Listener Listener
}

// Service sequences the ledger, day register and achievement unlocker on
// every completion toggle and serves the derived read models.
type Service struct {
	habits       storage.HabitStore
	progress     storage.ProgressStore
	achievements storage.AchievementStore

	ledger   *Ledger
	register *Register
	unlocker *Unlocker

	clock     utils.Clock
	validator *validation.Validator
	listener  Listener

	// single writer
	mu sync.Mutex
}

func NewService(habits storage.HabitStore, progress storage.ProgressStore, achievements storage.AchievementStore, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Service{
		habits:       habits,
		progress:     progress,
		achievements: achievements,
		ledger:       NewLedger(progress),
		register:     NewRegister(progress, clock),
		unlocker:     NewUnlocker(achievements, clock, opts.Rules),
		clock:        clock,
		validator:    validation.New(),
		listener:     opts.Listener,
	}
}

// Today returns the current day according to the service clock.
func (s *Service) Today() models.Day {
	return utils.Today(s.clock)
}

// listenerTimeout bounds how long a listener may take per toggle.
const listenerTimeout = 3 * time.Second

// ToggleCompletion flips the completion of habitID on day. Completing a habit
// for today awards XP, registers the day and unlocks achievements;
// un-completing never takes any of that back. The writes run to completion
// even if ctx is cancelled. If a reward step fails, the completion and the
// progress are put back as they were and the storage error is returned, so
// the same toggle can be retried.
func (s *Service) ToggleCompletion(ctx context.Context, habitID string, day models.Day) (ToggleResult, error) {
	ctx = context.WithoutCancel(ctx)

	result, err := s.toggle(ctx, habitID, day)
	if err != nil {
		return ToggleResult{}, err
	}

	if s.listener != nil && result.Rewarded() {
		lctx, cancel := context.WithTimeout(ctx, listenerTimeout)
		defer cancel()
		if err := s.listener.ProgressChanged(lctx, result); err != nil {
			logger.Warn("Progress listener failed", "error", err)
		}
	}
	return result, nil
}

func (s *Service) toggle(ctx context.Context, habitID string, day models.Day) (ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	habit, err := s.habits.GetHabit(ctx, habitID)
	if err != nil {
		return ToggleResult{}, err
	}
	if habit.Archived {
		return ToggleResult{}, errors.InvalidArgument("habit %q is archived", habit.Name)
	}

	today := s.Today()
	if day > today {
		return ToggleResult{}, errors.InvalidArgument("cannot complete %s, which is after today (%s)", day, today)
	}

	completed, err := s.habits.ToggleCompletion(ctx, habitID, day)
	if err != nil {
		return ToggleResult{}, err
	}
	result := ToggleResult{HabitID: habitID, Day: day, Completed: completed}

	if !completed || day != today {
		logger.Debug("Completion toggled without reward", "habit", habit.Name, "day", day, "completed", completed)
		return result, nil
	}

	before, err := s.progress.Load(ctx)
	if err != nil {
		return s.rollback(ctx, habitID, day, nil, err)
	}

	if _, result.LevelsGained, err = s.ledger.AddXP(ctx, constants.XPPerCompletion); err != nil {
		return s.rollback(ctx, habitID, day, nil, err)
	}
	result.XPAwarded = constants.XPPerCompletion

	p, err := s.register.RegisterDayWithCompletion(ctx)
	if err != nil {
		return s.rollback(ctx, habitID, day, &before, err)
	}
	result.Progress = p

	ids, err := s.unlocker.CheckAndUnlock(ctx, p)
	if err != nil {
		return s.rollback(ctx, habitID, day, &before, err)
	}
	for _, id := range ids {
		if a, ok := Lookup(id); ok {
			unlockedAt := s.clock.Now().UTC().Truncate(time.Second)
			a.UnlockedAt = &unlockedAt
			result.Unlocked = append(result.Unlocked, a)
		}
	}

	logger.Info("Habit completed", "habit", habit.Name, "level", p.Level, "total_xp", p.TotalXP,
		"streak_days", p.CurrentStreakDays, "unlocked", ids)
	return result, nil
}

// rollback undoes a completing toggle whose rewards could not be stored.
// When before is set the progress is restored to it first. cause is returned
// unchanged; rollback failures are only logged.
func (s *Service) rollback(ctx context.Context, habitID string, day models.Day, before *models.UserProgress, cause error) (ToggleResult, error) {
	logger.Error("Completion rewards failed, rolling back", "habit_id", habitID, "day", day, "error", cause)

	if before != nil {
		restore := *before
		if _, err := s.progress.Mutate(ctx, func(models.UserProgress) (models.UserProgress, error) {
			return restore, nil
		}); err != nil {
			logger.Error("Failed to restore progress", "error", err)
		}
	}
	if completed, err := s.habits.ToggleCompletion(ctx, habitID, day); err != nil {
		logger.Error("Failed to undo completion", "habit_id", habitID, "day", day, "error", err)
	} else if completed {
		logger.Error("Undo left completion in place", "habit_id", habitID, "day", day)
	}
	return ToggleResult{}, cause
}

// ToggleToday toggles the habit's completion for the current day.
func (s *Service) ToggleToday(ctx context.Context, habitID string) (ToggleResult, error) {
	return s.ToggleCompletion(ctx, habitID, s.Today())
}

// CreateHabit validates in and stores a new habit.
func (s *Service) CreateHabit(ctx context.Context, in models.HabitInput) (models.Habit, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.ValidateHabitInput(in); err != nil {
		return models.Habit{}, err
	}
	if err := s.ensureUniqueName(ctx, in.Name, ""); err != nil {
		return models.Habit{}, err
	}

	now := s.clock.Now().UTC()
	habit := models.Habit{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	habit.Apply(in)
	return s.habits.InsertHabit(ctx, habit)
}

// UpdateHabit replaces the editable fields of an existing habit.
func (s *Service) UpdateHabit(ctx context.Context, id string, in models.HabitInput) (models.Habit, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.ValidateHabitInput(in); err != nil {
		return models.Habit{}, err
	}
	habit, err := s.habits.GetHabit(ctx, id)
	if err != nil {
		return models.Habit{}, err
	}
	if err := s.ensureUniqueName(ctx, in.Name, id); err != nil {
		return models.Habit{}, err
	}

	habit.Apply(in)
	habit.UpdatedAt = s.clock.Now().UTC()
	if err := s.habits.UpdateHabit(ctx, habit); err != nil {
		return models.Habit{}, err
	}
	return habit, nil
}

func (s *Service) ensureUniqueName(ctx context.Context, name, exceptID string) error {
	habits, err := s.habits.ListHabits(ctx, false)
	if err != nil {
		return err
	}
	for _, h := range habits {
		if h.ID != exceptID && strings.EqualFold(h.Name, name) {
			return errors.InvalidArgument("an active habit named %q already exists", h.Name)
		}
	}
	return nil
}

func (s *Service) ArchiveHabit(ctx context.Context, id string) error {
	return s.habits.ArchiveHabit(ctx, id)
}

func (s *Service) UnarchiveHabit(ctx context.Context, id string) error {
	return s.habits.UnarchiveHabit(ctx, id)
}

// FindHabit resolves a habit by id or by case-insensitive name. Active habits
// win over archived ones with the same name.
func (s *Service) FindHabit(ctx context.Context, ref string) (models.Habit, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Habit{}, errors.InvalidArgument("habit name or id is required")
	}

	habit, err := s.habits.GetHabit(ctx, ref)
	if err == nil {
		return habit, nil
	}
	if !stderrors.Is(err, errors.ErrNotFound) {
		return models.Habit{}, err
	}

	all, err := s.habits.ListHabits(ctx, true)
	if err != nil {
		return models.Habit{}, err
	}
	var matches []models.Habit
	for _, h := range all {
		if strings.EqualFold(h.Name, ref) {
			matches = append(matches, h)
		}
	}
	var active []models.Habit
	for _, h := range matches {
		if !h.Archived {
			active = append(active, h)
		}
	}

	switch {
	case len(active) == 1:
		return active[0], nil
	case len(active) == 0 && len(matches) == 1:
		return matches[0], nil
	case len(matches) == 0:
		return models.Habit{}, errors.NotFound("habit %q", ref)
	default:
		return models.Habit{}, errors.InvalidArgument("%q matches %d habits, use the habit id", ref, len(matches))
	}
}

// BuildHabitProgress derives streaks and weekly counts for a habit.
func BuildHabitProgress(habit models.Habit, days []models.Day, today models.Day) models.HabitProgress {
	sorted := slices.Clone(days)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	current, longest := CalculateStreaks(sorted)
	hp := models.HabitProgress{
		Habit:          habit,
		Days:           sorted,
		CurrentStreak:  current,
		LongestStreak:  longest,
		CompletedToday: slices.Contains(sorted, today),
	}
	weekStart := today.WeekStart()
	for _, d := range sorted {
		if d >= weekStart && d <= today {
			hp.CompletedThisWeek++
		}
	}
	return hp
}

// HabitProgress returns a habit with its completion history and streaks.
func (s *Service) HabitProgress(ctx context.Context, habitID string) (models.HabitProgress, error) {
	habit, err := s.habits.GetHabit(ctx, habitID)
	if err != nil {
		return models.HabitProgress{}, err
	}
	days, err := s.habits.ListCompletionDays(ctx, habitID)
	if err != nil {
		return models.HabitProgress{}, err
	}
	return BuildHabitProgress(habit, days, s.Today()), nil
}

// ListHabitProgress returns progress for every habit, loading completion
// histories concurrently.
func (s *Service) ListHabitProgress(ctx context.Context, includeArchived bool) ([]models.HabitProgress, error) {
	habits, err := s.habits.ListHabits(ctx, includeArchived)
	if err != nil {
		return nil, err
	}

	today := s.Today()
	out := make([]models.HabitProgress, len(habits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, h := range habits {
		i, h := i, h
		g.Go(func() error {
			days, err := s.habits.ListCompletionDays(gctx, h.ID)
			if err != nil {
				return err
			}
			out[i] = BuildHabitProgress(h, days, today)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ObserveHabitProgress emits the habit's progress whenever the habit or its
// completions change. Archived habits produce no values.
func (s *Service) ObserveHabitProgress(ctx context.Context, habitID string) <-chan models.HabitProgress {
	out := make(chan models.HabitProgress, 1)
	habits := s.habits.ObserveHabits(ctx)
	completions := s.habits.ObserveCompletions(ctx, habitID)

	go func() {
		defer close(out)
		var (
			habit    *models.Habit
			days     []models.Day
			haveDays bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case list, ok := <-habits:
				if !ok {
					return
				}
				habit = nil
				for i := range list {
					if list[i].ID == habitID {
						h := list[i]
						habit = &h
						break
					}
				}
			case d, ok := <-completions:
				if !ok {
					return
				}
				days, haveDays = d, true
			}

			if habit == nil || !haveDays {
				continue
			}
			select {
			case <-out:
			default:
			}
			out <- BuildHabitProgress(*habit, days, s.Today())
		}
	}()
	return out
}

func (s *Service) Progress(ctx context.Context) (models.UserProgress, error) {
	return s.progress.Load(ctx)
}

func (s *Service) ObserveProgress(ctx context.Context) <-chan models.UserProgress {
	return s.progress.Observe(ctx)
}

// Achievements returns the catalog with unlock times.
func (s *Service) Achievements(ctx context.Context) ([]models.Achievement, error) {
	return s.unlocker.Achievements(ctx)
}

// ObserveAchievements emits the catalog with unlock times after every unlock.
func (s *Service) ObserveAchievements(ctx context.Context) <-chan []models.Achievement {
	out := make(chan []models.Achievement, 1)
	unlocks := s.achievements.Observe(ctx)
	go func() {
		defer close(out)
		for u := range unlocks {
			select {
			case <-out:
			default:
			}
			out <- MergeCatalog(u)
		}
	}()
	return out
}

// Statistics summarizes active habits, progress and achievements.
func (s *Service) Statistics(ctx context.Context) (models.Statistics, error) {
	var (
		habits  []models.HabitProgress
		p       models.UserProgress
		unlocks models.Unlocks
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		habits, err = s.ListHabitProgress(gctx, false)
		return err
	})
	g.Go(func() (err error) {
		p, err = s.progress.Load(gctx)
		return err
	})
	g.Go(func() (err error) {
		unlocks, err = s.achievements.Load(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Statistics{}, err
	}

	stats := models.Statistics{
		ActiveHabits:      len(habits),
		TotalAchievements: len(Catalog),
		Level:             p.Level,
		TotalXP:           p.TotalXP,
		CurrentStreakDays: p.CurrentStreakDays,
		LongestStreakDays: p.LongestStreakDays,
	}
	for _, hp := range habits {
		stats.TotalCompletions += len(hp.Days)
		stats.TotalStreakDays += hp.CurrentStreak
	}
	for _, a := range Catalog {
		if unlocks.Has(a.ID) {
			stats.UnlockedAchievements++
		}
	}
	return stats, nil
}
