package system

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/julianstephens/horizon/internal/cli"
	"github.com/julianstephens/horizon/internal/config"
	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/keyring"
	"github.com/julianstephens/horizon/internal/notifier"
	"github.com/julianstephens/horizon/internal/utils"
	"github.com/julianstephens/horizon/internal/validation"
)

type DoctorCmd struct{}

// skipped marks a check that does not apply to the current setup.
type skipped string

func (s skipped) Error() string { return string(s) }

type check struct {
	name string
	run  func(context.Context, *cli.Context) error
	// needsDB checks are skipped when the database is not reachable.
	needsDB bool
	// warnOnly failures do not fail the run.
	warnOnly bool
}

var checks = []check{
	{name: "Schema version", run: checkSchemaVersion, needsDB: true},
	{name: "Data validation", run: checkValidation, needsDB: true},
	{name: "Completion duplicates", run: checkCompletionDuplicates, needsDB: true},
	{name: "Progress store", run: checkProgressStore},
	{name: "Clock/timezone", run: checkClockTimezone},
	{name: "Backups present", run: checkBackupsPresent, warnOnly: true},
	{name: "Keyring", run: checkKeyring, warnOnly: true},
	{name: "Notifications", run: checkNotifications, warnOnly: true},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()

	fmt.Println("Running diagnostics...")
	fmt.Println()

	hasError := false
	dbReachable := false

	if err := checkDBReachable(appCtx, ctx); err != nil {
		fmt.Printf("❌ Database reachable: FAIL\n")
		fmt.Printf("   Error: %v\n", err)
		hasError = true
	} else {
		fmt.Printf("✓ Database reachable: OK\n")
		dbReachable = true
	}

	for _, c := range checks {
		if c.needsDB && !dbReachable {
			fmt.Printf("⊘ %s: SKIPPED (database not reachable)\n", c.name)
			continue
		}

		err := c.run(appCtx, ctx)
		var skip skipped
		switch {
		case err == nil:
			fmt.Printf("✓ %s: OK\n", c.name)
		case stderrors.As(err, &skip):
			fmt.Printf("⊘ %s: SKIPPED (%s)\n", c.name, skip)
		case c.warnOnly:
			fmt.Printf("⚠ %s: WARNING\n", c.name)
			fmt.Printf("   %v\n", err)
		default:
			fmt.Printf("❌ %s: FAIL\n", c.name)
			fmt.Printf("   Error: %v\n", err)
			hasError = true
		}
	}

	fmt.Println()
	if hasError {
		fmt.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}

	fmt.Println("All diagnostics passed!")
	return nil
}

func checkDBReachable(appCtx context.Context, ctx *cli.Context) error {
	if err := ctx.Store.Load(appCtx); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	return ctx.Store.Ping(appCtx)
}

func checkSchemaVersion(appCtx context.Context, ctx *cli.Context) error {
	current, latest, err := ctx.Store.SchemaVersion(appCtx)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if current > latest {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", current, latest)
	}
	if current < latest {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d", current, latest)
	}
	return nil
}

func checkValidation(appCtx context.Context, ctx *cli.Context) error {
	habits, err := ctx.Store.ListHabits(appCtx, true)
	if err != nil {
		return fmt.Errorf("failed to get habits: %w", err)
	}
	result := validation.New().ValidateHabits(habits)
	if result.HasConflicts() {
		return fmt.Errorf("%s", result.FormatReport())
	}
	return nil
}

func checkCompletionDuplicates(appCtx context.Context, ctx *cli.Context) error {
	n, err := ctx.Store.DuplicateCompletions(appCtx)
	if err != nil {
		return fmt.Errorf("failed to check duplicate completions: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("found %d habit+day combinations with duplicate completions", n)
	}
	return nil
}

func checkProgressStore(appCtx context.Context, ctx *cli.Context) error {
	if err := ctx.OpenProgressStore(); err != nil {
		return err
	}
	p, err := ctx.Progress.Progress().Load(appCtx)
	if err != nil {
		return err
	}
	if _, err := ctx.Progress.Achievements().Load(appCtx); err != nil {
		return err
	}

	switch {
	case p.Level < constants.StartingLevel:
		return fmt.Errorf("level %d is below the starting level", p.Level)
	case p.CurrentXP < 0 || p.CurrentXP >= p.XPForNextLevel:
		return fmt.Errorf("current XP %d is outside 0..%d", p.CurrentXP, p.XPForNextLevel-1)
	case p.LongestStreakDays < p.CurrentStreakDays:
		return fmt.Errorf("longest streak %d is shorter than current streak %d", p.LongestStreakDays, p.CurrentStreakDays)
	}
	return nil
}

func checkClockTimezone(_ context.Context, ctx *cli.Context) error {
	if _, err := utils.LoadLocation(ctx.Config.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", ctx.Config.Timezone, err)
	}

	now := time.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	return nil
}

func checkBackupsPresent(_ context.Context, ctx *cli.Context) error {
	if !ctx.IsSQLite() {
		return skipped("PostgreSQL database")
	}
	backups, err := ctx.BackupManager().ListBackups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found - consider creating one with '%s backup create'", constants.AppName)
	}
	return nil
}

func checkKeyring(_ context.Context, ctx *cli.Context) error {
	if ctx.Config.Database != config.KeyringDatabase {
		return skipped("database is not read from the keyring")
	}
	if !keyring.IsAvailable() {
		return keyring.ErrKeyringUnavailable
	}
	_, err := keyring.GetConnectionString()
	return err
}

func checkNotifications(_ context.Context, ctx *cli.Context) error {
	if !ctx.Config.Notifications.Enabled {
		return skipped("notifications disabled")
	}
	return notifier.TrayStatus()
}
