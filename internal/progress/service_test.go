package progress

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/storage"
	"github.com/julianstephens/horizon/internal/storage/kv"
	"github.com/julianstephens/horizon/internal/storage/sqlite"
	"github.com/julianstephens/horizon/internal/utils"
)

type recordingListener struct {
	mu      sync.Mutex
	results []ToggleResult
}

func (l *recordingListener) ProgressChanged(_ context.Context, r ToggleResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
	return nil
}

type testEnv struct {
	svc      *Service
	clock    *utils.FixedClock
	habits   *sqlite.Store
	kv       *kv.Store
	listener *recordingListener
}

func setupService(t *testing.T, rules []Rule) *testEnv {
	t.Helper()
	ctx := context.Background()

	habits := sqlite.NewStore(filepath.Join(t.TempDir(), "horizon.db"))
	require.NoError(t, habits.Init(ctx))
	t.Cleanup(func() { habits.Close() })

	store := setupKV(t)
	clock := utils.NewFixedClock(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC))
	listener := &recordingListener{}

	svc := NewService(habits, store.Progress(), store.Achievements(), Options{
		Clock:    clock,
		Rules:    rules,
		Listener: listener,
	})
	return &testEnv{svc: svc, clock: clock, habits: habits, kv: store, listener: listener}
}

func (e *testEnv) createHabit(t *testing.T, name string) models.Habit {
	t.Helper()
	h, err := e.svc.CreateHabit(context.Background(), models.HabitInput{
		Name:          name,
		TargetPerWeek: 7,
		ActiveDays:    models.AllDays,
		Color:         "#6366F1",
	})
	require.NoError(t, err)
	return h
}

func TestToggleTodayAwardsXP(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	habit := env.createHabit(t, "Read")

	res, err := env.svc.ToggleToday(ctx, habit.ID)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 10, res.XPAwarded)
	assert.Equal(t, 10, res.Progress.TotalXP)
	assert.Equal(t, 1, res.Progress.CurrentStreakDays)
	assert.Empty(t, res.Unlocked)
	assert.False(t, res.Rewarded())

	hp, err := env.svc.HabitProgress(ctx, habit.ID)
	require.NoError(t, err)
	assert.True(t, hp.CompletedToday)
	assert.Equal(t, 1, hp.CurrentStreak)
}

func TestThreeConsecutiveDaysUnlockStreak3(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	habit := env.createHabit(t, "Read")

	var last ToggleResult
	for i := 0; i < 3; i++ {
		var err error
		last, err = env.svc.ToggleToday(ctx, habit.ID)
		require.NoError(t, err)
		env.clock.AdvanceDays(1)
	}

	require.Len(t, last.Unlocked, 1)
	assert.Equal(t, Streak3, last.Unlocked[0].ID)
	assert.Equal(t, 3, last.Progress.CurrentStreakDays)

	achievements, err := env.svc.Achievements(ctx)
	require.NoError(t, err)
	for _, a := range achievements {
		assert.Equal(t, a.ID == Streak3, a.Unlocked(), a.ID)
	}

	require.Len(t, env.listener.results, 1)
	assert.Equal(t, Streak3, env.listener.results[0].Unlocked[0].ID)
}

func TestGapResetsDayStreak(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	habit := env.createHabit(t, "Read")

	for i := 0; i < 2; i++ {
		_, err := env.svc.ToggleToday(ctx, habit.ID)
		require.NoError(t, err)
		env.clock.AdvanceDays(1)
	}
	env.clock.AdvanceDays(1)

	res, err := env.svc.ToggleToday(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Progress.CurrentStreakDays)
	assert.Equal(t, 2, res.Progress.LongestStreakDays)

	hp, err := env.svc.HabitProgress(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, hp.CurrentStreak)
	assert.Equal(t, 2, hp.LongestStreak)
}

func TestTenCompletionsReachLevelTwo(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()

	var habits []models.Habit
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		habits = append(habits, env.createHabit(t, name))
	}

	var levelUps int
	for _, h := range habits {
		res, err := env.svc.ToggleToday(ctx, h.ID)
		require.NoError(t, err)
		levelUps += res.LevelsGained
	}

	p, err := env.svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 0, p.CurrentXP)
	assert.Equal(t, 100, p.TotalXP)
	assert.Equal(t, 1, levelUps)

	// several habits on one day count once in the register
	assert.Equal(t, 1, p.CurrentStreakDays)

	require.Len(t, env.listener.results, 1)
	assert.Equal(t, 1, env.listener.results[0].LevelsGained)
}

func TestUntoggleKeepsRewards(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	habit := env.createHabit(t, "Read")

	_, err := env.svc.ToggleToday(ctx, habit.ID)
	require.NoError(t, err)

	res, err := env.svc.ToggleToday(ctx, habit.ID)
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Zero(t, res.XPAwarded)

	p, err := env.svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, p.TotalXP)
	assert.Equal(t, 1, p.CurrentStreakDays)

	// completing again the same day awards XP again
	res, err = env.svc.ToggleToday(ctx, habit.ID)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 20, res.Progress.TotalXP)
	assert.Equal(t, 1, res.Progress.CurrentStreakDays)
}

func TestTogglePastDayIsNotRewarded(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	habit := env.createHabit(t, "Read")

	yesterday := env.svc.Today() - 1
	res, err := env.svc.ToggleCompletion(ctx, habit.ID, yesterday)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Zero(t, res.XPAwarded)

	p, err := env.svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultUserProgress(), p)

	days, err := env.habits.ListCompletionDays(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Day{yesterday}, days)
}

func TestToggleFutureDay(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	habit := env.createHabit(t, "Read")

	_, err := env.svc.ToggleCompletion(ctx, habit.ID, env.svc.Today()+1)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	days, err := env.habits.ListCompletionDays(ctx, habit.ID)
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestToggleUnknownHabit(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()

	_, err := env.svc.ToggleToday(ctx, "does-not-exist")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	p, err := env.svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultUserProgress(), p)
}

func TestToggleArchivedHabit(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	habit := env.createHabit(t, "Read")
	require.NoError(t, env.svc.ArchiveHabit(ctx, habit.ID))

	_, err := env.svc.ToggleToday(ctx, habit.ID)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestToggleSurvivesCancelledContext(t *testing.T) {
	env := setupService(t, nil)
	habit := env.createHabit(t, "Read")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.svc.ToggleToday(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Progress.TotalXP)
}

func TestFirstCompletionRuleOptIn(t *testing.T) {
	env := setupService(t, append([]Rule{FirstCompletionRule}, DefaultRules...))
	habit := env.createHabit(t, "Read")

	res, err := env.svc.ToggleToday(context.Background(), habit.ID)
	require.NoError(t, err)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, FirstCompletion, res.Unlocked[0].ID)
	assert.Equal(t, "First Steps", res.Unlocked[0].Title)
}

func TestConcurrentTogglesAcrossHabits(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()

	var habits []models.Habit
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		habits = append(habits, env.createHabit(t, name))
	}

	var wg sync.WaitGroup
	for _, h := range habits {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.ToggleToday(ctx, h.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := env.svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, p.TotalXP)
}

func TestCreateHabitValidation(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	env.createHabit(t, "Read")

	_, err := env.svc.CreateHabit(ctx, models.HabitInput{Name: "  ", TargetPerWeek: 7, ActiveDays: models.AllDays, Color: "#6366F1"})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = env.svc.CreateHabit(ctx, models.HabitInput{Name: "read", TargetPerWeek: 7, ActiveDays: models.AllDays, Color: "#6366F1"})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = env.svc.CreateHabit(ctx, models.HabitInput{Name: "Run", TargetPerWeek: 9, ActiveDays: models.AllDays, Color: "#6366F1"})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestUpdateHabit(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	habit := env.createHabit(t, "Read")
	env.createHabit(t, "Run")

	in := habit.Input()
	in.Description = "before bed"
	updated, err := env.svc.UpdateHabit(ctx, habit.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "before bed", updated.Description)

	in.Name = "RUN"
	_, err = env.svc.UpdateHabit(ctx, habit.ID, in)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = env.svc.UpdateHabit(ctx, "missing", habit.Input())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestFindHabit(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	read := env.createHabit(t, "Read")

	h, err := env.svc.FindHabit(ctx, "read")
	require.NoError(t, err)
	assert.Equal(t, read.ID, h.ID)

	h, err = env.svc.FindHabit(ctx, read.ID)
	require.NoError(t, err)
	assert.Equal(t, read.ID, h.ID)

	_, err = env.svc.FindHabit(ctx, "walk")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = env.svc.FindHabit(ctx, "")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	// an archived habit with the same name loses to the active one
	require.NoError(t, env.svc.ArchiveHabit(ctx, read.ID))
	again := env.createHabit(t, "Read")
	h, err = env.svc.FindHabit(ctx, "READ")
	require.NoError(t, err)
	assert.Equal(t, again.ID, h.ID)
}

func TestBuildHabitProgress(t *testing.T) {
	// 2026-03-04 is a Wednesday; the week starts on Monday 2026-03-02
	today := models.DayOf(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	days := []models.Day{today - 9, today - 2, today - 1, today, today}

	hp := BuildHabitProgress(models.Habit{ID: "h"}, days, today)
	assert.Equal(t, []models.Day{today - 9, today - 2, today - 1, today}, hp.Days)
	assert.Equal(t, 3, hp.CurrentStreak)
	assert.Equal(t, 3, hp.LongestStreak)
	assert.True(t, hp.CompletedToday)
	assert.Equal(t, 3, hp.CompletedThisWeek)
}

func TestListHabitProgressAndStatistics(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	read := env.createHabit(t, "Read")
	run := env.createHabit(t, "Run")
	env.createHabit(t, "Stretch")

	for i := 0; i < 3; i++ {
		_, err := env.svc.ToggleToday(ctx, read.ID)
		require.NoError(t, err)
		if i == 2 {
			_, err = env.svc.ToggleToday(ctx, run.ID)
			require.NoError(t, err)
		} else {
			env.clock.AdvanceDays(1)
		}
	}

	list, err := env.svc.ListHabitProgress(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	byName := map[string]models.HabitProgress{}
	for _, hp := range list {
		byName[hp.Habit.Name] = hp
	}
	assert.Equal(t, 3, byName["Read"].CurrentStreak)
	assert.Equal(t, 1, byName["Run"].CurrentStreak)
	assert.Equal(t, 0, byName["Stretch"].CurrentStreak)

	stats, err := env.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ActiveHabits)
	assert.Equal(t, 4, stats.TotalCompletions)
	assert.Equal(t, 4, stats.TotalStreakDays)
	assert.Equal(t, 40, stats.TotalXP)
	assert.Equal(t, 3, stats.CurrentStreakDays)
	assert.Equal(t, 1, stats.UnlockedAchievements)
	assert.Equal(t, len(Catalog), stats.TotalAchievements)
}

func TestObserveHabitProgress(t *testing.T) {
	env := setupService(t, nil)
	habit := env.createHabit(t, "Read")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := env.svc.ObserveHabitProgress(ctx, habit.ID)

	select {
	case hp := <-updates:
		assert.False(t, hp.CompletedToday)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial progress")
	}

	_, err := env.svc.ToggleToday(context.Background(), habit.ID)
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case hp := <-updates:
			if hp.CompletedToday {
				assert.Equal(t, 1, hp.CurrentStreak)
				return
			}
		case <-deadline:
			t.Fatal("toggle was not observed")
		}
	}
}

func TestObserveAchievements(t *testing.T) {
	env := setupService(t, nil)
	habit := env.createHabit(t, "Read")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := env.svc.ObserveAchievements(ctx)

	select {
	case list := <-updates:
		require.Len(t, list, len(Catalog))
	case <-time.After(2 * time.Second):
		t.Fatal("no initial achievements")
	}

	for i := 0; i < 3; i++ {
		_, err := env.svc.ToggleToday(context.Background(), habit.ID)
		require.NoError(t, err)
		env.clock.AdvanceDays(1)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case list := <-updates:
			for _, a := range list {
				if a.ID == Streak3 && a.Unlocked() {
					return
				}
			}
		case <-deadline:
			t.Fatal("unlock was not observed")
		}
	}
}

// failingProgress fails the failOn-th call to Mutate.
type failingProgress struct {
	storage.ProgressStore
	failOn int
	calls  int
}

func (f *failingProgress) Mutate(ctx context.Context, transform func(models.UserProgress) (models.UserProgress, error)) (models.UserProgress, error) {
	f.calls++
	if f.calls == f.failOn {
		return models.UserProgress{}, errors.StorageFailure("update progress", io.ErrUnexpectedEOF)
	}
	return f.ProgressStore.Mutate(ctx, transform)
}

type failingAchievements struct {
	storage.AchievementStore
	fail bool
}

func (f *failingAchievements) Mutate(ctx context.Context, transform func(models.Unlocks) (models.Unlocks, error)) (models.Unlocks, error) {
	if f.fail {
		return nil, errors.StorageFailure("update achievements", io.ErrUnexpectedEOF)
	}
	return f.AchievementStore.Mutate(ctx, transform)
}

func TestToggleStorageFailureRollsBack(t *testing.T) {
	tests := []struct {
		name         string
		progressFail int
		unlocksFail  bool
	}{
		{"ledger", 1, false},
		{"register", 2, false},
		{"unlocker", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t, nil)
			ctx := context.Background()
			habit := env.createHabit(t, "Read")

			progress := &failingProgress{ProgressStore: env.kv.Progress(), failOn: tt.progressFail}
			unlocks := &failingAchievements{AchievementStore: env.kv.Achievements(), fail: tt.unlocksFail}
			svc := NewService(env.habits, progress, unlocks, Options{Clock: env.clock})

			_, err := svc.ToggleToday(ctx, habit.ID)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrStorageFailure)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

			days, err := env.habits.ListCompletionDays(ctx, habit.ID)
			require.NoError(t, err)
			assert.Empty(t, days, "completion must be undone")

			p, err := env.kv.Progress().Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, models.DefaultUserProgress(), p, "progress must be restored")

			unlocked, err := env.kv.Achievements().Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, unlocked)

			// retrying once storage recovers performs the whole action
			progress.failOn = 0
			unlocks.fail = false
			res, err := svc.ToggleToday(ctx, habit.ID)
			require.NoError(t, err)
			assert.True(t, res.Completed)
			assert.Equal(t, 10, res.Progress.TotalXP)
			assert.Equal(t, 1, res.Progress.CurrentStreakDays)

			days, err = env.habits.ListCompletionDays(ctx, habit.ID)
			require.NoError(t, err)
			assert.Equal(t, []models.Day{svc.Today()}, days)
		})
	}
}

type reentrantListener struct {
	svc         *Service
	habitID     string
	hasDeadline bool
	err         error
}

func (l *reentrantListener) ProgressChanged(ctx context.Context, _ ToggleResult) error {
	_, l.hasDeadline = ctx.Deadline()
	_, l.err = l.svc.ToggleToday(ctx, l.habitID)
	return l.err
}

func TestListenerRunsOutsideWriterLock(t *testing.T) {
	env := setupService(t, nil)
	ctx := context.Background()
	first := env.createHabit(t, "Read")
	second := env.createHabit(t, "Walk")

	listener := &reentrantListener{habitID: second.ID}
	svc := NewService(env.habits, env.kv.Progress(), env.kv.Achievements(), Options{
		Clock:    env.clock,
		Rules:    append([]Rule{FirstCompletionRule}, DefaultRules...),
		Listener: listener,
	})
	listener.svc = svc

	done := make(chan error, 1)
	go func() {
		_, err := svc.ToggleToday(ctx, first.ID)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("toggle blocked while the listener was running")
	}
	require.NoError(t, listener.err)
	assert.True(t, listener.hasDeadline, "listener context should carry a timeout")

	p, err := svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, p.TotalXP)
}
