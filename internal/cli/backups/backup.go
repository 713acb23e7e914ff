package backups

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/horizon/internal/backup"
	"github.com/julianstephens/horizon/internal/cli"
	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
)

func requireSQLite(ctx *cli.Context) error {
	if !ctx.IsSQLite() {
		return errors.InvalidArgument("backups are only supported for the SQLite database; use pg_dump for PostgreSQL")
	}
	return nil
}

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	if err := requireSQLite(ctx); err != nil {
		return err
	}
	if err := ctx.OpenProgressStore(); err != nil {
		return err
	}

	backupPath, err := ctx.BackupManager().CreateBackup(context.Background())
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	fmt.Printf("✓ Backup created: %s\n", filepath.Base(backupPath))
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	if err := requireSQLite(ctx); err != nil {
		return err
	}

	mgr := backup.NewManager(ctx.Store.GetConfigPath(), ctx.Config.Backups.Keep)
	backups, err := mgr.ListBackups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(backups) == 0 {
		fmt.Println("No backups found.")
		fmt.Printf("Backups are stored in: %s\n", mgr.GetBackupDir())
		return nil
	}

	fmt.Printf("Available backups (%d total, keeping most recent %d):\n\n", len(backups), ctx.Config.Backups.Keep)
	for _, b := range backups {
		sizeKB := float64(b.Size) / 1024.0
		timestamp := b.Timestamp.Format("2006-01-02 15:04:05")
		filename := filepath.Base(b.Path)
		progress := ""
		if b.ProgressPath == "" {
			progress = cli.MutedStyle.Render("  (habits only)")
		}
		fmt.Printf("  %s  %s  (%.1f KB)%s\n", timestamp, filename, sizeKB, progress)
	}
	fmt.Printf("\nBackup directory: %s\n", mgr.GetBackupDir())

	return nil
}

type BackupRestoreCmd struct {
	BackupFile string `arg:"" help:"Path or filename of the backup to restore."`
	Yes        bool   `short:"y" help:"Restore without asking for confirmation."`
}

// resolve finds the backup as given, relative to the working directory, or
// inside the backup directory.
func (c *BackupRestoreCmd) resolve(mgr *backup.Manager) (string, error) {
	backupPath := c.BackupFile
	if filepath.IsAbs(backupPath) {
		if _, err := os.Stat(backupPath); os.IsNotExist(err) {
			return "", errors.NotFound("backup file not found: %s", backupPath)
		}
		return backupPath, nil
	}

	if _, err := os.Stat(backupPath); err == nil {
		absPath, err := filepath.Abs(backupPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve backup path: %w", err)
		}
		return absPath, nil
	}

	possiblePath := filepath.Join(mgr.GetBackupDir(), c.BackupFile)
	if _, err := os.Stat(possiblePath); err == nil {
		return possiblePath, nil
	}
	return "", errors.NotFound("backup file not found: tried current directory and %s", mgr.GetBackupDir())
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	if err := requireSQLite(ctx); err != nil {
		return err
	}

	mgr := backup.NewManager(ctx.Store.GetConfigPath(), ctx.Config.Backups.Keep)
	backupPath, err := c.resolve(mgr)
	if err != nil {
		return err
	}

	if !c.Yes {
		fmt.Println(cli.WarningStyle.Render("⚠️  WARNING: This will replace your current habits and progress with the backup."))
		fmt.Println(cli.WarningStyle.Render("⚠️  IMPORTANT: All " + constants.AppName + " processes must be stopped before restore."))
		fmt.Println("A backup of your current data will be created before restoring.")
		fmt.Printf("\nRestore from: %s\n", backupPath)

		confirmed := false
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Continue?").
					Affirmative("Restore").
					Negative("Cancel").
					Value(&confirmed),
			),
		).WithTheme(huh.ThemeDracula()).Run()
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Restore cancelled.")
			return nil
		}
	}

	// the database file is replaced underneath any open connection
	if err := ctx.Store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
	}
	if err := ctx.OpenProgressStore(); err != nil {
		return err
	}

	if err := mgr.WithProgress(ctx.Progress).RestoreBackup(context.Background(), backupPath); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	fmt.Println("✓ Data restored successfully!")
	return nil
}
