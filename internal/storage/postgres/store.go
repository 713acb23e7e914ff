package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	pq "github.com/lib/pq"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/logger"
	"github.com/julianstephens/horizon/internal/migration"
	"github.com/julianstephens/horizon/internal/storage"
	"github.com/julianstephens/horizon/internal/storage/sqlstore"
	"github.com/julianstephens/horizon/migrations"
)

var (
	ErrInvalidConnectionString = stderrors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = stderrors.New("connection string must not contain a password")
)

// Store is the PostgreSQL habit store. Tables live in a schema named after
// the application.
type Store struct {
	*sqlstore.Store

	connStr string
	db      *sqlx.DB
}

var _ storage.Provider = (*Store)(nil)

func New(connStr string) *Store {
	s := &Store{
		connStr: connStr,
	}
	s.ensureSearchPath()
	return s
}

func (s *Store) ensureSearchPath() {
	if isURL(s.connStr) {
		u, err := url.Parse(s.connStr)
		if err != nil {
			logger.Warn("Failed to parse Postgres connection string", "error", err)
			return
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", constants.AppName)
			u.RawQuery = q.Encode()
			s.connStr = u.String()
		}
		return
	}
	if !hasDSNParam(s.connStr, "search_path") {
		s.connStr = strings.TrimSpace(s.connStr) + " search_path=" + constants.AppName
	}
}

func isURL(connStr string) bool {
	return strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://")
}

// hasDSNParam reports whether a key=value DSN sets key (case-insensitive).
func hasDSNParam(connStr, key string) bool {
	for _, part := range strings.Fields(connStr) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], key) {
			return true
		}
	}
	return false
}

// hasSSLMode reports whether the URL or DSN sets sslmode.
func hasSSLMode(connStr string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for key := range u.Query() {
			if strings.EqualFold(key, "sslmode") {
				return true
			}
		}
	}
	return hasDSNParam(connStr, "sslmode")
}

// ValidateConnString checks that connStr is a well-formed PostgreSQL URL or
// DSN. When allowPassword is false an embedded password is rejected with
// ErrEmbeddedCredentials.
func ValidateConnString(connStr string, allowPassword bool) error {
	if strings.TrimSpace(connStr) == "" {
		return fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}

	if _, err := pq.NewConnector(connStr); err != nil {
		return fmt.Errorf("%w: invalid connection string format: %v", ErrInvalidConnectionString, err)
	}

	if isURL(connStr) {
		parsedURL, err := url.Parse(connStr)
		if err != nil {
			return fmt.Errorf("%w: failed to parse connection URL: %v", ErrInvalidConnectionString, err)
		}
		if parsedURL.Host == "" && parsedURL.User == nil && (parsedURL.Path == "" || parsedURL.Path == "/") {
			return fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
		if _, isSet := parsedURL.User.Password(); isSet && !allowPassword {
			return ErrEmbeddedCredentials
		}
		return nil
	}

	if !allowPassword && hasDSNParam(connStr, "password") {
		return ErrEmbeddedCredentials
	}
	return nil
}

// MaskPassword replaces any password in a connection string with ****.
func MaskPassword(connStr string) string {
	if !isURL(connStr) {
		parts := strings.Fields(connStr)
		for i, part := range parts {
			if strings.HasPrefix(part, "password=") {
				parts[i] = "password=****"
			}
		}
		return strings.Join(parts, " ")
	}

	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

func migrationsFS() (fs.FS, error) {
	subFS, err := fs.Sub(migrations.FS, constants.DriverPostgres)
	if err != nil {
		return nil, fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	return subFS, nil
}

func (s *Store) open(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", s.connStr)
	if err != nil {
		return nil, errors.StorageFailure("open database", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(s.connStr) {
			return nil, errors.StorageFailure("connect", fmt.Errorf("%w (hint: try adding ?sslmode=disable to your connection string)", err))
		}
		return nil, errors.StorageFailure("connect", err)
	}
	return db, nil
}

func (s *Store) attach(db *sqlx.DB) error {
	subFS, err := migrationsFS()
	if err != nil {
		return err
	}
	s.db = db
	s.Store = sqlstore.New(db, subFS)
	return nil
}

// Init creates the schema if needed and applies pending migrations.
func (s *Store) Init(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+constants.AppName); err != nil {
		db.Close()
		return errors.StorageFailure("create schema", err)
	}
	if err := s.attach(db); err != nil {
		db.Close()
		return err
	}

	subFS, err := migrationsFS()
	if err != nil {
		return err
	}
	if _, err := migration.NewRunner(s.db, subFS).ApplyMigrations(ctx, nil); err != nil {
		return errors.StorageFailure("run migrations", err)
	}
	logger.Debug("PostgreSQL store initialized")
	return nil
}

// Load connects to an initialized database and checks its schema version.
func (s *Store) Load(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	if err := s.attach(db); err != nil {
		db.Close()
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
	// non-sensitive identifier instead of the connection string
	return "postgresql"
}
