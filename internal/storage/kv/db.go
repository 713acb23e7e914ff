package kv

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/julianstephens/horizon/internal/logger"
)

// Config holds badger settings for the progress store.
type Config struct {
	Path string

	InMemory bool

	SyncWrites bool

	// Quiet disables badger's internal logging.
	Quiet bool

	GCInterval time.Duration

	GCDiscardRatio float64
}

// DefaultConfig returns settings for the on-disk store. Writes are synced
// so that an awarded XP survives a crash right after the command returns.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for an ephemeral store used in tests.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		Quiet:    true,
	}
}

// DB wraps a badger database with transaction helpers and a value log
// garbage collector.
type DB struct {
	*badger.DB
	path     string
	inMemory bool
	stopGC   chan struct{}
	gcDone   chan struct{}
}

// OpenDB opens (creating if needed) the badger database described by cfg.
func OpenDB(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, stderrors.New("path is required for persistent progress store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0700); err != nil {
			return nil, fmt.Errorf("failed to create progress directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Quiet {
		opts = opts.WithLogger(nil)
	} else {
		opts = opts.WithLogger(logger.Printf{Component: "badger"})
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open progress store: %w", err)
	}

	db := &DB{DB: bdb, path: cfg.Path, inMemory: cfg.InMemory}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		db.stopGC = make(chan struct{})
		db.gcDone = make(chan struct{})
		go db.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return db, nil
}

func (d *DB) runGC(interval time.Duration, ratio float64) {
	defer close(d.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			err := d.RunValueLogGC(ratio)
			if err != nil && !stderrors.Is(err, badger.ErrNoRewrite) {
				logger.Warn("Progress store value log GC failed", "error", err)
			}
		}
	}
}

func (d *DB) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
		<-d.gcDone
		d.stopGC = nil
	}
	return d.DB.Close()
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) InMemory() bool {
	return d.inMemory
}

// WithTxn runs fn in a read-write transaction and commits it.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// Export writes a full backup of the store to w.
func (d *DB) Export(w io.Writer) error {
	_, err := d.Backup(w, 0)
	return err
}

// Import replaces the contents of the store with a backup produced by Export.
func (d *DB) Import(r io.Reader) error {
	if err := d.DropAll(); err != nil {
		return fmt.Errorf("failed to clear progress store: %w", err)
	}
	return d.Load(r, 16)
}
