package backups

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/julianstephens/horizon/internal/cli"
	"github.com/julianstephens/horizon/internal/config"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/storage/sqlite"
)

func setupTestBackupContext(t *testing.T) (*cli.Context, func()) {
	t.Helper()
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	store := sqlite.NewStore(dbPath)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	cfg := config.Default()
	cfg.Database = dbPath
	cfg.ProgressDir = filepath.Join(tempDir, "progress")
	cfg.Notifications.Enabled = false

	ctx := &cli.Context{Config: cfg, Store: store}
	if err := ctx.OpenProgress(); err != nil {
		t.Fatalf("failed to open progress: %v", err)
	}
	return ctx, func() { ctx.Close() }
}

func TestBackupCreateListRestore(t *testing.T) {
	ctx, cleanup := setupTestBackupContext(t)
	defer cleanup()
	appCtx := context.Background()

	if _, err := ctx.Service.CreateHabit(appCtx, models.HabitInput{
		Name:          "Read",
		TargetPerWeek: 7,
		ActiveDays:    models.AllDays,
		Color:         "#6366F1",
	}); err != nil {
		t.Fatal(err)
	}

	if err := (&BackupCreateCmd{}).Run(ctx); err != nil {
		t.Fatalf("backup create failed: %v", err)
	}
	if err := (&BackupListCmd{}).Run(ctx); err != nil {
		t.Fatalf("backup list failed: %v", err)
	}

	backups, err := ctx.BackupManager().ListBackups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(backups))
	}
	if backups[0].ProgressPath == "" {
		t.Error("expected the progress store to be included in the backup")
	}

	cmd := &BackupRestoreCmd{BackupFile: filepath.Base(backups[0].Path), Yes: true}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	// reopen the replaced database
	store := sqlite.NewStore(ctx.Config.Database)
	if err := store.Load(appCtx); err != nil {
		t.Fatalf("failed to load restored database: %v", err)
	}
	defer store.Close()
	habits, err := store.ListHabits(appCtx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(habits) != 1 {
		t.Errorf("expected 1 habit after restore, got %d", len(habits))
	}
}

func TestBackupRestoreMissingFile(t *testing.T) {
	ctx, cleanup := setupTestBackupContext(t)
	defer cleanup()

	cmd := &BackupRestoreCmd{BackupFile: "horizon-20200101-000000.db", Yes: true}
	if err := cmd.Run(ctx); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestBackupRequiresSQLite(t *testing.T) {
	ctx, cleanup := setupTestBackupContext(t)
	defer cleanup()

	ctx.Config.Database = "postgres://horizon@localhost:5432/horizon"
	if err := (&BackupCreateCmd{}).Run(ctx); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for PostgreSQL, got %v", err)
	}
}
