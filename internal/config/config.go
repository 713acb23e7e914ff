package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/utils"
)

// KeyringDatabase is the database value that selects the connection string
// stored in the OS keyring.
const KeyringDatabase = "keyring"

// NotificationsConfig controls desktop notifications for level-ups and unlocks.
type NotificationsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AchievementsConfig toggles optional achievement rules.
type AchievementsConfig struct {
	// FirstCompletion enables an automatic rule for the first_completion
	// achievement, which otherwise has no trigger.
	FirstCompletion bool `mapstructure:"first_completion"`
}

// BackupsConfig controls backup retention.
type BackupsConfig struct {
	Keep int `mapstructure:"keep"`
}

// Config is the top-level application configuration.
type Config struct {
	Database      string              `mapstructure:"database"`
	ProgressDir   string              `mapstructure:"progress_dir"`
	Timezone      string              `mapstructure:"timezone"`
	Debug         bool                `mapstructure:"debug"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Achievements  AchievementsConfig  `mapstructure:"achievements"`
	Backups       BackupsConfig       `mapstructure:"backups"`
}

var defaults = map[string]interface{}{
	"database":                      constants.DefaultDBPath,
	"progress_dir":                  constants.DefaultProgressDir,
	"timezone":                      constants.DefaultTimezone,
	"debug":                         false,
	"notifications.enabled":         true,
	"achievements.first_completion": false,
	"backups.keep":                  constants.MaxBackups,
}

// Keys lists every supported configuration key.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	path, err := utils.ExpandPath(constants.DefaultConfigFile)
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return path
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database:      constants.DefaultDBPath,
		ProgressDir:   constants.DefaultProgressDir,
		Timezone:      constants.DefaultTimezone,
		Notifications: NotificationsConfig{Enabled: true},
		Backups:       BackupsConfig{Keep: constants.MaxBackups},
	}
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// Load reads configuration from the given YAML file. A missing file yields
// the defaults; HORIZON_* environment variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	path, err := utils.ExpandPath(path)
	if err != nil {
		return nil, err
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if stderrors.As(err, &notFound) {
		return true
	}
	var pathErr *fs.PathError
	return stderrors.As(err, &pathErr) && stderrors.Is(pathErr.Err, fs.ErrNotExist)
}

func (c *Config) expand() error {
	var err error
	if c.Driver() == constants.DriverSQLite && c.Database != KeyringDatabase {
		if c.Database, err = utils.ExpandPath(c.Database); err != nil {
			return err
		}
	}
	c.ProgressDir, err = utils.ExpandPath(c.ProgressDir)
	return err
}

// Driver reports which relational driver the database setting selects.
func (c *Config) Driver() string {
	if IsPostgresDSN(c.Database) || c.Database == KeyringDatabase {
		return constants.DriverPostgres
	}
	return constants.DriverSQLite
}

// IsPostgresDSN reports whether s looks like a PostgreSQL connection string.
func IsPostgresDSN(s string) bool {
	return strings.HasPrefix(s, "postgres://") ||
		strings.HasPrefix(s, "postgresql://") ||
		strings.Contains(s, "host=")
}

// Dir returns the directory holding the config file, logs and default data.
func Dir(path string) string {
	if path == "" {
		path = DefaultPath()
	}
	return filepath.Dir(path)
}

// Save writes the configuration to a YAML file, creating parent
// directories if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	path, err := utils.ExpandPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("database", cfg.Database)
	v.Set("progress_dir", cfg.ProgressDir)
	v.Set("timezone", cfg.Timezone)
	v.Set("debug", cfg.Debug)
	v.Set("notifications.enabled", cfg.Notifications.Enabled)
	v.Set("achievements.first_completion", cfg.Achievements.FirstCompletion)
	v.Set("backups.keep", cfg.Backups.Keep)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// Set assigns a single key from its string form.
func (c *Config) Set(key, value string) error {
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, errors.InvalidArgument("%s expects true or false, got %q", key, value)
		}
		return b, nil
	}

	var err error
	switch key {
	case "database":
		c.Database = value
	case "progress_dir":
		c.ProgressDir = value
	case "timezone":
		if _, lerr := utils.LoadLocation(value); lerr != nil {
			return errors.InvalidArgument("unknown timezone %q", value)
		}
		c.Timezone = value
	case "debug":
		c.Debug, err = parseBool()
	case "notifications.enabled":
		c.Notifications.Enabled, err = parseBool()
	case "achievements.first_completion":
		c.Achievements.FirstCompletion, err = parseBool()
	case "backups.keep":
		n, perr := strconv.Atoi(value)
		if perr != nil || n < 1 {
			return errors.InvalidArgument("backups.keep expects a positive integer, got %q", value)
		}
		c.Backups.Keep = n
	default:
		return errors.InvalidArgument("unknown config key %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	return err
}

// Get returns the string form of a single key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "database":
		return c.Database, nil
	case "progress_dir":
		return c.ProgressDir, nil
	case "timezone":
		return c.Timezone, nil
	case "debug":
		return strconv.FormatBool(c.Debug), nil
	case "notifications.enabled":
		return strconv.FormatBool(c.Notifications.Enabled), nil
	case "achievements.first_completion":
		return strconv.FormatBool(c.Achievements.FirstCompletion), nil
	case "backups.keep":
		return strconv.Itoa(c.Backups.Keep), nil
	}
	return "", errors.InvalidArgument("unknown config key %q", key)
}
