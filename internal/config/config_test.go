package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, constants.DriverSQLite, cfg.Driver())
	assert.Equal(t, constants.DefaultTimezone, cfg.Timezone)
	assert.True(t, cfg.Notifications.Enabled)
	assert.False(t, cfg.Achievements.FirstCompletion)
	assert.Equal(t, constants.MaxBackups, cfg.Backups.Keep)
	assert.NotContains(t, cfg.Database, "~", "home directory should be expanded")
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := Default()
	cfg.Database = filepath.Join(dir, "habits.db")
	cfg.ProgressDir = filepath.Join(dir, "progress")
	cfg.Timezone = "UTC"
	cfg.Achievements.FirstCompletion = true
	cfg.Backups.Keep = 5
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("HORIZON_TIMEZONE", "Europe/Berlin")
	t.Setenv("HORIZON_NOTIFICATIONS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.False(t, cfg.Notifications.Enabled)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDriver(t *testing.T) {
	tests := []struct {
		database string
		want     string
	}{
		{"/tmp/horizon.db", constants.DriverSQLite},
		{"postgres://localhost/horizon", constants.DriverPostgres},
		{"postgresql://user@db:5432/horizon", constants.DriverPostgres},
		{"host=localhost dbname=horizon", constants.DriverPostgres},
		{KeyringDatabase, constants.DriverPostgres},
	}
	for _, tt := range tests {
		t.Run(tt.database, func(t *testing.T) {
			cfg := &Config{Database: tt.database}
			assert.Equal(t, tt.want, cfg.Driver())
		})
	}
}

func TestSetAndGet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("achievements.first_completion", "true"))
	require.NoError(t, cfg.Set("backups.keep", "3"))
	require.NoError(t, cfg.Set("timezone", "UTC"))

	for key, want := range map[string]string{
		"achievements.first_completion": "true",
		"backups.keep":                  "3",
		"timezone":                      "UTC",
	} {
		got, err := cfg.Get(key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}

	for _, bad := range [][2]string{
		{"debug", "maybe"},
		{"backups.keep", "0"},
		{"timezone", "Mars/Olympus"},
		{"colour", "blue"},
	} {
		err := cfg.Set(bad[0], bad[1])
		assert.True(t, stderrors.Is(err, errors.ErrInvalidArgument), "Set(%s, %s) = %v", bad[0], bad[1], err)
	}

	_, err := cfg.Get("colour")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidArgument))
}

func TestKeysCoverGetters(t *testing.T) {
	cfg := Default()
	for _, key := range Keys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}
