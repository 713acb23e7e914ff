package kv

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/storage"
)

const maxConflictRetries = 3

// errTransform marks errors returned by a Mutate transform so they are not
// reported as storage failures.
type errTransform struct{ err error }

func (e errTransform) Error() string { return e.err.Error() }
func (e errTransform) Unwrap() error { return e.err }

// cell is a single JSON-encoded value stored under one key.
type cell[T any] struct {
	db      *DB
	key     []byte
	initial func() T
	// normalize repairs decoded values, e.g. fields missing from older data
	normalize func(T) T

	mu      sync.Mutex
	changes *storage.Broadcaster
}

func newCell[T any](db *DB, key string, initial func() T, normalize func(T) T) *cell[T] {
	if normalize == nil {
		normalize = func(v T) T { return v }
	}
	return &cell[T]{
		db:        db,
		key:       []byte(key),
		initial:   initial,
		normalize: normalize,
		changes:   storage.NewBroadcaster(),
	}
}

func (c *cell[T]) get(txn *badger.Txn) (T, error) {
	item, err := txn.Get(c.key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return c.initial(), nil
	}
	if err != nil {
		var zero T
		return zero, err
	}

	v := c.initial()
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	}); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s: %w", c.key, err)
	}
	return c.normalize(v), nil
}

func (c *cell[T]) Load(ctx context.Context) (T, error) {
	var v T
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		v, err = c.get(txn)
		return err
	})
	if err != nil {
		var zero T
		return zero, errors.StorageFailure("load "+string(c.key), err)
	}
	return v, nil
}

func (c *cell[T]) Mutate(ctx context.Context, transform func(T) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		next T
		err  error
	)
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = c.db.WithTxn(ctx, func(txn *badger.Txn) error {
			cur, err := c.get(txn)
			if err != nil {
				return err
			}
			next, err = transform(cur)
			if err != nil {
				return errTransform{err}
			}
			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode %s: %w", c.key, err)
			}
			return txn.Set(c.key, data)
		})
		if !stderrors.Is(err, badger.ErrConflict) {
			break
		}
	}

	var terr errTransform
	switch {
	case stderrors.As(err, &terr):
		var zero T
		return zero, terr.err
	case err != nil:
		var zero T
		return zero, errors.StorageFailure("update "+string(c.key), err)
	}

	c.changes.Broadcast()
	return next, nil
}

func (c *cell[T]) Observe(ctx context.Context) <-chan T {
	return storage.Observe(ctx, c.changes, string(c.key), c.Load)
}
