package main

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/horizon/internal/cli"
	"github.com/julianstephens/horizon/internal/cli/backups"
	"github.com/julianstephens/horizon/internal/cli/habits"
	"github.com/julianstephens/horizon/internal/cli/rewards"
	"github.com/julianstephens/horizon/internal/cli/system"
	"github.com/julianstephens/horizon/internal/config"
	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/keyring"
	"github.com/julianstephens/horizon/internal/logger"
	"github.com/julianstephens/horizon/internal/storage"
	"github.com/julianstephens/horizon/internal/storage/postgres"
	"github.com/julianstephens/horizon/internal/storage/sqlite"
	"github.com/julianstephens/horizon/internal/utils"
)

var CLI struct {
	Version    kong.VersionFlag
	ConfigFile string `help:"Config file path." default:"${config_file}" env:"HORIZON_CONFIG_FILE"`
	Database   string `help:"SQLite path or PostgreSQL connection string, overriding the config file. For PostgreSQL, credentials must NOT be embedded in the connection string. Use .pgpass or 'keyring set' instead."`
	Debug      bool   `help:"Enable debug logging."`

	Init         system.InitCmd          `cmd:"" help:"Initialize horizon storage."`
	Habit        habits.HabitCmd         `cmd:"" help:"Manage habits and habit tracking."`
	Progress     rewards.ProgressCmd     `cmd:"" help:"Show level, XP and day streak."`
	Achievements rewards.AchievementsCmd `cmd:"" help:"List achievements."`
	Stats        rewards.StatsCmd        `cmd:"" help:"Show habit and progress statistics."`

	Backup struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage database backups."`
	Doctor  system.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`
	Keyring system.KeyringCmd `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
	Config  system.ConfigCmd  `cmd:"" help:"Show or change configuration."`
	Notify  system.NotifyCmd  `cmd:"" hidden:"" help:"Send a notification to the tray app."`
}

// storeless commands never touch the habit database.
var storeless = []string{"keyring", "config", "notify"}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracker with streaks, XP levels and achievements"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     constants.Version,
			"config_file": constants.DefaultConfigFile,
		},
	)

	configPath, err := utils.ExpandPath(CLI.ConfigFile)
	if err != nil {
		errors.Fatal(err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		errors.Fatal(err)
	}
	if CLI.Database != "" {
		if cfg.Database, err = expandDatabase(CLI.Database); err != nil {
			errors.Fatal(err)
		}
	}
	if CLI.Debug {
		cfg.Debug = true
	}

	if err := logger.Init(logger.Config{Debug: cfg.Debug, ConfigDir: config.Dir(configPath)}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	appCtx := &cli.Context{
		Config:     cfg,
		ConfigPath: configPath,
	}
	if needsStore(ctx.Command()) {
		store, err := newStore(cfg)
		if err != nil {
			errors.Fatal(err)
		}
		appCtx.Store = store
	}

	err = ctx.Run(appCtx)
	if closeErr := appCtx.Close(); closeErr != nil {
		logger.Warn("Failed to close storage", "error", closeErr)
	}
	errors.Fatal(err)
}

func needsStore(command string) bool {
	for _, name := range storeless {
		if command == name || strings.HasPrefix(command, name+" ") {
			return false
		}
	}
	return true
}

func expandDatabase(database string) (string, error) {
	if config.IsPostgresDSN(database) || database == config.KeyringDatabase {
		return database, nil
	}
	return utils.ExpandPath(database)
}

// newStore selects the habit store for the database setting: a SQLite path,
// a PostgreSQL connection string without password, or "keyring" to read the
// connection string from the OS keyring.
func newStore(cfg *config.Config) (storage.Provider, error) {
	switch {
	case cfg.Database == config.KeyringDatabase:
		connStr, err := keyring.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to read database from keyring (store one with '%s keyring set'): %w", constants.AppName, err)
		}
		return postgres.New(connStr), nil

	case config.IsPostgresDSN(cfg.Database):
		if err := postgres.ValidateConnString(cfg.Database, false); err != nil {
			if stderrors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, errors.InvalidArgument(
					"PostgreSQL connection strings with embedded credentials are NOT allowed. "+
						"Store it in the OS keyring with '%s keyring set' and set database to %q, or use a .pgpass file",
					constants.AppName, config.KeyringDatabase)
			}
			return nil, errors.InvalidArgument("%v", err)
		}
		return postgres.New(cfg.Database), nil

	default:
		return sqlite.NewStore(cfg.Database), nil
	}
}
