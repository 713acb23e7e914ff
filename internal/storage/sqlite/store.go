package sqlite

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/logger"
	"github.com/julianstephens/horizon/internal/migration"
	"github.com/julianstephens/horizon/internal/storage"
	"github.com/julianstephens/horizon/internal/storage/sqlstore"
	"github.com/julianstephens/horizon/migrations"
)

// Store is the SQLite habit store. It must be initialized or loaded before
// any habit method is called.
type Store struct {
	*sqlstore.Store

	path string
	db   *sqlx.DB
}

var _ storage.Provider = (*Store)(nil)

func NewStore(path string) *Store {
	return &Store{
		path: path,
	}
}

// dsn enables foreign keys and WAL on every pooled connection.
func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func migrationsFS() (fs.FS, error) {
	subFS, err := fs.Sub(migrations.FS, constants.DriverSQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	return subFS, nil
}

func (s *Store) open(ctx context.Context) error {
	subFS, err := migrationsFS()
	if err != nil {
		return err
	}

	db, err := sqlx.Open("sqlite", dsn(s.path))
	if err != nil {
		return errors.StorageFailure("open database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.StorageFailure("open database", err)
	}
	s.db = db
	s.Store = sqlstore.New(db, subFS)
	return nil
}

// Init creates the database file if needed and applies pending migrations.
func (s *Store) Init(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.StorageFailure("create config directory", err)
	}
	if err := s.open(ctx); err != nil {
		return err
	}

	subFS, err := migrationsFS()
	if err != nil {
		return err
	}
	runner := migration.NewRunner(s.db, subFS)
	if _, err := runner.ApplyMigrations(ctx, nil); err != nil {
		return errors.StorageFailure("run migrations", err)
	}
	logger.Debug("SQLite store initialized", "path", s.path)
	return nil
}

// Load opens an existing database and checks that its schema is supported.
func (s *Store) Load(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return errors.NotFound("storage not initialized, run '%s init' first", constants.AppName)
	}
	if err := s.open(ctx); err != nil {
		return err
	}

	subFS, err := migrationsFS()
	if err != nil {
		return err
	}
	if err := migration.NewRunner(s.db, subFS).ValidateVersion(ctx); err != nil {
		return errors.StorageFailure("validate schema", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) GetConfigPath() string {
	return s.path
}

