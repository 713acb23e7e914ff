package constants

import "time"

const (
	AppName            = "horizon"
	DefaultKeyringUser = "database-connection"
	DefaultConfigDir   = "~/.config/horizon"
	DefaultConfigFile  = "~/.config/horizon/config.yaml"
	DefaultDBPath      = "~/.config/horizon/horizon.db"
	DefaultProgressDir = "~/.config/horizon/progress"
	DefaultTimezone    = "Local"
	EnvPrefix          = "HORIZON"
	Version            = "v0.3.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// Gamification constants
	XPPerCompletion = 10
	XPPerLevel      = 100
	StartingLevel   = 1

	// Key-value store keys
	ProgressKey     = "progress/user"
	AchievementsKey = "achievements/unlocked"

	// Habit defaults
	DefaultTargetPerWeek = 7
	DefaultHabitColor    = "#6366F1"
	MaxHabitNameLength   = 80

	// Backup constants
	MaxBackups            = 14
	BackupDirName         = "backups"
	BackupFilePrefix      = "horizon-"
	BackupFileSuffix      = ".db"
	ProgressBackupSuffix  = ".kv"
	BackupTimestampFormat = "20060102-150405"

	// Notify constants
	NotifyMaxRetries       = 3
	NotifyRetryDelay       = 100 * time.Millisecond
	NotifierLockfileName   = "horizon-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.horizon"

	// Storage drivers
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)
