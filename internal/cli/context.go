package cli

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/julianstephens/horizon/internal/backup"
	"github.com/julianstephens/horizon/internal/config"
	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/logger"
	"github.com/julianstephens/horizon/internal/notifier"
	"github.com/julianstephens/horizon/internal/progress"
	"github.com/julianstephens/horizon/internal/storage"
	"github.com/julianstephens/horizon/internal/storage/kv"
	"github.com/julianstephens/horizon/internal/utils"
)

type Context struct {
	Config     *config.Config
	ConfigPath string
	Store      storage.Provider

	// Progress and Service are set by Open.
	Progress *kv.Store
	Service  *progress.Service
	Clock    utils.Clock
}

// Open loads the habit store, opens the progress store and wires the
// progress service. A Progress or Clock set beforehand is kept, and opening
// an already open context does nothing.
func (c *Context) Open(ctx context.Context) error {
	if c.Service != nil {
		return nil
	}
	if err := c.Store.Load(ctx); err != nil {
		return err
	}
	return c.OpenProgress()
}

// OpenProgress opens the progress store and builds the service on top of an
// already loaded habit store.
func (c *Context) OpenProgress() error {
	if err := c.OpenProgressStore(); err != nil {
		return err
	}

	if c.Clock == nil {
		loc, err := utils.LoadLocation(c.Config.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Config.Timezone, err)
		}
		c.Clock = utils.SystemClock{Location: loc}
	}

	opts := progress.Options{Clock: c.Clock, Rules: Rules(c.Config)}
	if c.Config.Notifications.Enabled {
		opts.Listener = notifier.New()
	}
	c.Service = progress.NewService(c.Store, c.Progress.Progress(), c.Progress.Achievements(), opts)
	return nil
}

// OpenProgressStore opens the badger progress store at progress_dir unless
// one is already set.
func (c *Context) OpenProgressStore() error {
	if c.Progress != nil {
		return nil
	}
	store, err := kv.Open(kv.DefaultConfig(c.Config.ProgressDir))
	if err != nil {
		return err
	}
	c.Progress = store
	return nil
}

// Rules returns the achievement rules enabled by cfg.
func Rules(cfg *config.Config) []progress.Rule {
	rules := append([]progress.Rule{}, progress.DefaultRules...)
	if cfg.Achievements.FirstCompletion {
		rules = append(rules, progress.FirstCompletionRule)
	}
	return rules
}

// Close releases the progress and habit stores.
func (c *Context) Close() error {
	var errs []error
	if c.Progress != nil {
		errs = append(errs, c.Progress.Close())
		c.Progress = nil
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return stderrors.Join(errs...)
}

// IsSQLite reports whether the habit store is a local SQLite file.
func (c *Context) IsSQLite() bool {
	return c.Config.Driver() == constants.DriverSQLite
}

// BackupManager returns the backup manager for the SQLite database, with the
// progress store attached when it is open.
func (c *Context) BackupManager() *backup.Manager {
	mgr := backup.NewManager(c.Store.GetConfigPath(), c.Config.Backups.Keep)
	if c.Progress != nil {
		mgr.WithProgress(c.Progress)
	}
	return mgr
}

// PerformAutomaticBackup creates an automatic backup and silently handles errors
func (c *Context) PerformAutomaticBackup(ctx context.Context) {
	if !c.IsSQLite() {
		return
	}
	if _, err := c.BackupManager().CreateBackup(ctx); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}
