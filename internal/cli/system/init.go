package system

import (
	"context"
	"fmt"
	"os"

	"github.com/julianstephens/horizon/internal/cli"
	"github.com/julianstephens/horizon/internal/config"
	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/logger"
)

type InitCmd struct {
	Force bool `help:"Force reset by deleting the existing database and progress before initialization."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()

	if c.Force {
		if err := c.reset(appCtx, ctx); err != nil {
			return err
		}
	}

	if err := ctx.Store.Init(appCtx); err != nil {
		return err
	}
	fmt.Printf("Initialized %s storage at: %s\n", constants.AppName, ctx.Store.GetConfigPath())

	if err := ctx.OpenProgressStore(); err != nil {
		return err
	}
	fmt.Printf("Progress store at: %s\n", ctx.Config.ProgressDir)

	if ctx.ConfigPath != "" {
		if _, err := os.Stat(ctx.ConfigPath); os.IsNotExist(err) {
			if err := config.Save(ctx.ConfigPath, ctx.Config); err != nil {
				return err
			}
			fmt.Printf("Wrote config file: %s\n", ctx.ConfigPath)
		}
	}
	return nil
}

// reset removes the SQLite database and the progress store after taking an
// automatic backup of both.
func (c *InitCmd) reset(appCtx context.Context, ctx *cli.Context) error {
	if !ctx.IsSQLite() {
		return errors.InvalidArgument("--force is only supported for the SQLite database")
	}

	dbPath := ctx.Store.GetConfigPath()
	if _, err := os.Stat(dbPath); err == nil {
		if err := ctx.OpenProgressStore(); err != nil {
			logger.Warn("Progress store not included in backup", "error", err)
		}
		ctx.PerformAutomaticBackup(appCtx)

		// close first to prevent file locking issues
		if err := ctx.Store.Close(); err != nil {
			return fmt.Errorf("failed to close existing database: %w", err)
		}
		for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete existing database: %w", err)
			}
		}
		fmt.Printf("Deleted existing database at: %s\n", dbPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to access existing database: %w", err)
	}

	if ctx.Progress != nil {
		if err := ctx.Progress.Close(); err != nil {
			return fmt.Errorf("failed to close progress store: %w", err)
		}
		ctx.Progress = nil
		ctx.Service = nil
	}
	if err := os.RemoveAll(ctx.Config.ProgressDir); err != nil {
		return fmt.Errorf("failed to delete progress store: %w", err)
	}
	return nil
}
