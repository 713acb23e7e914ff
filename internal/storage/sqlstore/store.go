// Package sqlstore implements storage.HabitStore on top of sqlx. The SQLite
// and PostgreSQL providers share it; queries use ? placeholders and are
// rebound for the driver in use.
package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/migration"
	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/storage"
)

const habitColumns = "id, name, description, target_per_week, active_days, color, archived, created_at, updated_at"

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

// Store is a relational habit store.
type Store struct {
	db          *sqlx.DB
	migrations  fs.FS
	habits      *storage.Broadcaster
	completions *storage.Broadcaster

	mu sync.Mutex // serializes writes
}

// New wraps an open connection. migrationsFS holds the driver's migration
// files and is used for schema diagnostics.
func New(db *sqlx.DB, migrationsFS fs.FS) *Store {
	return &Store{
		db:          db,
		migrations:  migrationsFS,
		habits:      storage.NewBroadcaster(),
		completions: storage.NewBroadcaster(),
	}
}

// DB returns the underlying connection.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// habitRow mirrors the habits table. Timestamps are stored as RFC3339 text.
type habitRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	Description   string `db:"description"`
	TargetPerWeek int    `db:"target_per_week"`
	ActiveDays    int    `db:"active_days"`
	Color         string `db:"color"`
	Archived      bool   `db:"archived"`
	CreatedAt     string `db:"created_at"`
	UpdatedAt     string `db:"updated_at"`
}

func newHabitRow(h models.Habit) habitRow {
	return habitRow{
		ID:            h.ID,
		Name:          h.Name,
		Description:   h.Description,
		TargetPerWeek: h.TargetPerWeek,
		ActiveDays:    int(h.ActiveDays),
		Color:         h.Color,
		Archived:      h.Archived,
		CreatedAt:     formatTime(h.CreatedAt),
		UpdatedAt:     formatTime(h.UpdatedAt),
	}
}

func (r habitRow) habit() (models.Habit, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return models.Habit{}, err
	}
	updatedAt, err := parseTime(r.UpdatedAt)
	if err != nil {
		return models.Habit{}, err
	}
	return models.Habit{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		TargetPerWeek: r.TargetPerWeek,
		ActiveDays:    models.Weekdays(r.ActiveDays),
		Color:         r.Color,
		Archived:      r.Archived,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

type completionRow struct {
	ID        string `db:"id"`
	HabitID   string `db:"habit_id"`
	Day       int64  `db:"day"`
	CreatedAt string `db:"created_at"`
}

func (r completionRow) completion() (models.Completion, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return models.Completion{}, err
	}
	return models.Completion{
		ID:        r.ID,
		HabitID:   r.HabitID,
		Day:       models.Day(r.Day),
		CreatedAt: createdAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.StorageFailure("parse timestamp", err)
	}
	return t, nil
}

// withTx runs fn in a transaction, committing if it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StorageFailure("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.StorageFailure("commit transaction", err)
	}
	return nil
}

// InsertHabit stores a new habit. An empty ID is replaced with a fresh UUID
// and zero timestamps with the current time.
func (s *Store) InsertHabit(ctx context.Context, habit models.Habit) (models.Habit, error) {
	if habit.ID == "" {
		habit.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if habit.CreatedAt.IsZero() {
		habit.CreatedAt = now
	}
	if habit.UpdatedAt.IsZero() {
		habit.UpdatedAt = habit.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO habits (`+habitColumns+`)
		VALUES (:id, :name, :description, :target_per_week, :active_days, :color, :archived, :created_at, :updated_at)`,
		newHabitRow(habit))
	if err != nil {
		return models.Habit{}, errors.StorageFailure("insert habit", err)
	}
	s.habits.Broadcast()
	return habit, nil
}

// UpdateHabit overwrites every column of an existing habit.
func (s *Store) UpdateHabit(ctx context.Context, habit models.Habit) error {
	if habit.UpdatedAt.IsZero() {
		habit.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE habits
		SET name = :name, description = :description, target_per_week = :target_per_week,
			active_days = :active_days, color = :color, archived = :archived, updated_at = :updated_at
		WHERE id = :id`,
		newHabitRow(habit))
	if err != nil {
		return errors.StorageFailure("update habit", err)
	}
	if err := requireRow(res, "habit %q", habit.ID); err != nil {
		return err
	}
	s.habits.Broadcast()
	return nil
}

// GetHabit returns the habit with the given id, archived or not.
func (s *Store) GetHabit(ctx context.Context, id string) (models.Habit, error) {
	return getHabit(ctx, s.db, id)
}

func getHabit(ctx context.Context, q queryer, id string) (models.Habit, error) {
	var row habitRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind("SELECT "+habitColumns+" FROM habits WHERE id = ?"), id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Habit{}, errors.NotFound("habit %q", id)
	}
	if err != nil {
		return models.Habit{}, errors.StorageFailure("get habit", err)
	}
	return row.habit()
}

// ListHabits returns habits ordered by creation time.
func (s *Store) ListHabits(ctx context.Context, includeArchived bool) ([]models.Habit, error) {
	query := "SELECT " + habitColumns + " FROM habits"
	var args []interface{}
	if !includeArchived {
		query += " WHERE archived = ?"
		args = append(args, false)
	}
	query += " ORDER BY created_at, name"

	var rows []habitRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.StorageFailure("list habits", err)
	}

	habits := make([]models.Habit, 0, len(rows))
	for _, row := range rows {
		h, err := row.habit()
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, nil
}

// ArchiveHabit hides a habit from the active list. Its history is kept.
func (s *Store) ArchiveHabit(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

// UnarchiveHabit restores an archived habit.
func (s *Store) UnarchiveHabit(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

func (s *Store) setArchived(ctx context.Context, id string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE habits SET archived = ?, updated_at = ? WHERE id = ?"),
		archived, formatTime(time.Now()), id)
	if err != nil {
		return errors.StorageFailure("archive habit", err)
	}
	if err := requireRow(res, "habit %q", id); err != nil {
		return err
	}
	s.habits.Broadcast()
	return nil
}

// GetCompletionForDate returns the completion for (habitID, day), or nil if
// the habit was not completed that day.
func (s *Store) GetCompletionForDate(ctx context.Context, habitID string, day models.Day) (*models.Completion, error) {
	row, err := completionFor(ctx, s.db, habitID, day)
	if err != nil || row == nil {
		return nil, err
	}
	c, err := row.completion()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func completionFor(ctx context.Context, q queryer, habitID string, day models.Day) (*completionRow, error) {
	var row completionRow
	err := sqlx.GetContext(ctx, q, &row,
		q.Rebind("SELECT id, habit_id, day, created_at FROM completions WHERE habit_id = ? AND day = ?"),
		habitID, int64(day))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageFailure("get completion", err)
	}
	return &row, nil
}

// InsertCompletion records a completion. The habit must exist and must not
// already be completed on that day.
func (s *Store) InsertCompletion(ctx context.Context, c models.Completion) (models.Completion, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := getHabit(ctx, tx, c.HabitID); err != nil {
			return err
		}
		existing, err := completionFor(ctx, tx, c.HabitID, c.Day)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.InvalidArgument("habit %q already completed on %s", c.HabitID, c.Day)
		}
		return insertCompletion(ctx, tx, c)
	})
	if err != nil {
		return models.Completion{}, err
	}
	s.completions.Broadcast()
	return c, nil
}

func insertCompletion(ctx context.Context, tx *sqlx.Tx, c models.Completion) error {
	_, err := tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO completions (id, habit_id, day, created_at) VALUES (?, ?, ?, ?)"),
		c.ID, c.HabitID, int64(c.Day), formatTime(c.CreatedAt))
	if err != nil {
		return errors.StorageFailure("insert completion", err)
	}
	return nil
}

// DeleteCompletion removes a completion by id.
func (s *Store) DeleteCompletion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM completions WHERE id = ?"), id)
	if err != nil {
		return errors.StorageFailure("delete completion", err)
	}
	if err := requireRow(res, "completion %q", id); err != nil {
		return err
	}
	s.completions.Broadcast()
	return nil
}

// ListCompletionDays returns the days a habit was completed, ascending.
func (s *Store) ListCompletionDays(ctx context.Context, habitID string) ([]models.Day, error) {
	var raw []int64
	err := s.db.SelectContext(ctx, &raw,
		s.db.Rebind("SELECT day FROM completions WHERE habit_id = ? ORDER BY day"), habitID)
	if err != nil {
		return nil, errors.StorageFailure("list completions", err)
	}
	days := make([]models.Day, len(raw))
	for i, d := range raw {
		days[i] = models.Day(d)
	}
	return days, nil
}

// CountCompletions returns the number of completions across all habits.
func (s *Store) CountCompletions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM completions"); err != nil {
		return 0, errors.StorageFailure("count completions", err)
	}
	return n, nil
}

// ToggleCompletion flips the completion state of (habitID, day) in one
// transaction and reports whether the habit is completed afterwards.
func (s *Store) ToggleCompletion(ctx context.Context, habitID string, day models.Day) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := getHabit(ctx, tx, habitID); err != nil {
			return err
		}
		existing, err := completionFor(ctx, tx, habitID, day)
		if err != nil {
			return err
		}
		if existing != nil {
			if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM completions WHERE id = ?"), existing.ID); err != nil {
				return errors.StorageFailure("delete completion", err)
			}
			completed = false
			return nil
		}
		completed = true
		return insertCompletion(ctx, tx, models.Completion{
			ID:        uuid.New().String(),
			HabitID:   habitID,
			Day:       day,
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return false, err
	}
	s.completions.Broadcast()
	return completed, nil
}

// ObserveHabits emits the active habits now and after every habit change.
func (s *Store) ObserveHabits(ctx context.Context) <-chan []models.Habit {
	return storage.Observe(ctx, s.habits, "habits", func(ctx context.Context) ([]models.Habit, error) {
		return s.ListHabits(ctx, false)
	})
}

// ObserveCompletions emits the habit's completion days now and after every
// completion change.
func (s *Store) ObserveCompletions(ctx context.Context, habitID string) <-chan []models.Day {
	return storage.Observe(ctx, s.completions, "completions:"+habitID, func(ctx context.Context) ([]models.Day, error) {
		return s.ListCompletionDays(ctx, habitID)
	})
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.StorageFailure("ping", err)
	}
	return nil
}

// SchemaVersion reports the applied and the latest available schema version.
func (s *Store) SchemaVersion(ctx context.Context) (current, latest int, err error) {
	st, err := migration.NewRunner(s.db, s.migrations).Status(ctx)
	if err != nil {
		return 0, 0, errors.StorageFailure("schema version", err)
	}
	return st.Current, st.Latest, nil
}

// DuplicateCompletions counts (habit, day) pairs recorded more than once.
// The schema forbids them, so anything but zero indicates corruption.
func (s *Store) DuplicateCompletions(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM (
			SELECT habit_id, day FROM completions GROUP BY habit_id, day HAVING COUNT(*) > 1
		) dupes`)
	if err != nil {
		return 0, errors.StorageFailure("check duplicates", err)
	}
	return n, nil
}

func requireRow(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.StorageFailure("rows affected", err)
	}
	if n == 0 {
		return errors.NotFound(format, args...)
	}
	return nil
}
