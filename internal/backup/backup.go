// Package backup snapshots the SQLite habit database together with the
// progress store and restores them as a pair.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/logger"
	"github.com/julianstephens/horizon/internal/storage/kv"
)

// BackupInfo contains information about a backup file
type BackupInfo struct {
	Path string
	// ProgressPath is the companion progress snapshot, empty if none was taken.
	ProgressPath string
	Timestamp    time.Time
	Size         int64
}

// Manager handles backup operations
type Manager struct {
	dbPath    string
	backupDir string
	keep      int
	progress  *kv.Store
	now       func() time.Time
}

// NewManager creates a backup manager for the database at dbPath that keeps
// at most keep backups. A non-positive keep means constants.MaxBackups.
func NewManager(dbPath string, keep int) *Manager {
	if keep <= 0 {
		keep = constants.MaxBackups
	}
	return &Manager{
		dbPath:    dbPath,
		backupDir: filepath.Join(filepath.Dir(dbPath), constants.BackupDirName),
		keep:      keep,
		now:       time.Now,
	}
}

// WithProgress includes the progress store in every backup and restore.
func (m *Manager) WithProgress(store *kv.Store) *Manager {
	m.progress = store
	return m
}

// GetBackupDir returns the backup directory path
func (m *Manager) GetBackupDir() string {
	return m.backupDir
}

// CreateBackup snapshots the database, and the progress store if attached.
func (m *Manager) CreateBackup(ctx context.Context) (string, error) {
	return m.createBackup(ctx, false)
}

// createBackup skips rotation when called during a restore, so the
// pre-restore snapshot can never evict the backup being restored.
func (m *Manager) createBackup(ctx context.Context, skipRotation bool) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", errors.StorageFailure("create backup directory", err)
	}
	if _, err := os.Stat(m.dbPath); os.IsNotExist(err) {
		return "", errors.NotFound("database does not exist: %s", m.dbPath)
	}

	backupPath, err := m.nextBackupPath()
	if err != nil {
		return "", err
	}

	if err := m.backupDatabase(ctx, backupPath); err != nil {
		return "", errors.StorageFailure("backup database", err)
	}
	if m.progress != nil {
		if err := m.backupProgress(progressPath(backupPath)); err != nil {
			_ = os.Remove(backupPath)
			return "", errors.StorageFailure("backup progress", err)
		}
	}

	if !skipRotation {
		if err := m.rotateBackups(); err != nil {
			logger.Warn("Failed to rotate old backups", "error", err)
		}
	}

	logger.Info("Backup created", "path", backupPath)
	return backupPath, nil
}

func (m *Manager) nextBackupPath() (string, error) {
	timestamp := m.now().Format(constants.BackupTimestampFormat)
	name := constants.BackupFilePrefix + timestamp + constants.BackupFileSuffix
	path := filepath.Join(m.backupDir, name)

	for counter := 1; fileExists(path); counter++ {
		if counter > 100 {
			return "", fmt.Errorf("failed to generate unique backup filename")
		}
		name = fmt.Sprintf("%s%s-%d%s", constants.BackupFilePrefix, timestamp, counter, constants.BackupFileSuffix)
		path = filepath.Join(m.backupDir, name)
	}
	return path, nil
}

func progressPath(backupPath string) string {
	return strings.TrimSuffix(backupPath, constants.BackupFileSuffix) + constants.ProgressBackupSuffix
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// backupDatabase writes a consistent copy with VACUUM INTO.
func (m *Manager) backupDatabase(ctx context.Context, destPath string) error {
	srcDB, err := sqlx.Open("sqlite", "file:"+m.dbPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer srcDB.Close()

	var count int
	if err := srcDB.GetContext(ctx, &count, "SELECT COUNT(*) FROM sqlite_master"); err != nil {
		return fmt.Errorf("source database appears to be corrupted: %w", err)
	}

	if _, err := srcDB.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("vacuum into %s: %w", destPath, err)
	}
	return nil
}

func (m *Manager) backupProgress(destPath string) error {
	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := m.progress.DB().Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ListBackups returns all available backups, newest first.
func (m *Manager) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, errors.StorageFailure("read backup directory", err)
	}

	backups := []BackupInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, constants.BackupFilePrefix) || !strings.HasSuffix(name, constants.BackupFileSuffix) {
			continue
		}

		timestamp, ok := parseBackupName(name)
		if !ok {
			continue
		}

		path := filepath.Join(m.backupDir, name)
		info, err := entry.Info()
		if err != nil {
			continue
		}

		b := BackupInfo{Path: path, Timestamp: timestamp, Size: info.Size()}
		if p := progressPath(path); fileExists(p) {
			b.ProgressPath = p
		}
		backups = append(backups, b)
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Path > backups[j].Path
		}
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// parseBackupName extracts the timestamp from horizon-YYYYMMDD-HHMMSS[-N].db.
func parseBackupName(name string) (time.Time, bool) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, constants.BackupFilePrefix), constants.BackupFileSuffix)

	parts := strings.Split(stamp, "-")
	if len(parts) == 3 {
		if _, err := strconv.Atoi(parts[2]); err != nil {
			return time.Time{}, false
		}
		stamp = parts[0] + "-" + parts[1]
	}

	t, err := time.ParseInLocation(constants.BackupTimestampFormat, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// rotateBackups removes old backups beyond the retention limit
func (m *Manager) rotateBackups() error {
	backups, err := m.ListBackups()
	if err != nil {
		return err
	}

	for i := m.keep; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
		if backups[i].ProgressPath != "" {
			if err := os.Remove(backups[i].ProgressPath); err != nil {
				return fmt.Errorf("failed to remove old progress backup %s: %w", backups[i].ProgressPath, err)
			}
		}
	}
	return nil
}

// RestoreBackup replaces the database with backupPath. The current database is
// backed up first. If a progress store is attached and the backup has a
// progress snapshot, the progress store is restored too. The habit store must
// not be open while restoring.
func (m *Manager) RestoreBackup(ctx context.Context, backupPath string) error {
	if !fileExists(backupPath) {
		return errors.NotFound("backup file does not exist: %s", backupPath)
	}
	if err := m.verifyBackup(ctx, backupPath); err != nil {
		return errors.InvalidArgument("backup file is corrupted or invalid: %v", err)
	}

	if fileExists(m.dbPath) {
		current, err := m.createBackup(ctx, true)
		if err != nil {
			return fmt.Errorf("failed to backup current database before restore: %w", err)
		}
		logger.Info("Created backup of current database", "path", filepath.Base(current))
	}

	tempPath := m.dbPath + ".restore.tmp"
	if err := copyFile(backupPath, tempPath); err != nil {
		return errors.StorageFailure("copy backup file", err)
	}
	if err := os.Rename(tempPath, m.dbPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			logger.Warn("Failed to remove temporary file", "path", tempPath, "error", removeErr)
		}
		return errors.StorageFailure("restore database", err)
	}
	// stale WAL files from the replaced database must not be replayed
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(m.dbPath + suffix)
	}

	if m.progress == nil {
		return nil
	}
	snapshot := progressPath(backupPath)
	if !fileExists(snapshot) {
		logger.Warn("Backup has no progress snapshot, progress left unchanged", "path", backupPath)
		return nil
	}
	f, err := os.Open(snapshot)
	if err != nil {
		return errors.StorageFailure("open progress backup", err)
	}
	defer f.Close()
	return m.progress.Restore(f)
}

// verifyBackup checks if a backup file is a valid SQLite database
func (m *Manager) verifyBackup(ctx context.Context, path string) error {
	db, err := sqlx.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	var count int
	return db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sqlite_master")
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := destFile.ReadFrom(sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}
