// Package repositories is the durable conversation store. Entities are
// JSON-encoded values in BadgerDB under prefixed keys; messages also feed
// a bluge full-text index for search.
package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
)

const (
	defaultStoreTimeout = 3 * time.Second
	conflictRetries     = 2
)

// store carries what every repository needs: the database handle, a
// logger and the deadline applied to each transaction.
type store struct {
	db      *badger.DB
	log     *slog.Logger
	timeout time.Duration
}

func newStore(db *badger.DB, log *slog.Logger, timeout time.Duration) store {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return store{db: db, log: log, timeout: timeout}
}

// update runs a read-write transaction under the store deadline.
// Badger's SSI can abort one of two transactions racing on the same key;
// those aborts are retried so toggles stay atomic under double-clicks.
func (s store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err = s.run(ctx, func() error { return s.db.Update(fn) })
		if err == nil || !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// view runs a read-only transaction, retried once since reads are
// idempotent.
func (s store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	err := s.run(ctx, func() error { return s.db.View(fn) })
	if stderrors.Is(err, errors.ErrStoreUnavailable) {
		err = s.run(ctx, func() error { return s.db.View(fn) })
	}
	return err
}

// run executes fn with a deadline. A transaction that outlives the
// deadline keeps running in its goroutine but the caller gets
// ErrStoreUnavailable; the operation is surfaced, never silently dropped.
func (s store) run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		s.log.Warn("store call exceeded deadline", "timeout", s.timeout)
		return errors.ErrStoreUnavailable
	case <-ctx.Done():
		return errors.ErrStoreUnavailable
	}
}

// getJSON loads and decodes one value, mapping a missing key to
// ErrNotFound.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setJSON encodes and stores one value.
func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func unmarshalJSON(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

// keysWithPrefix collects every key under prefix. Values are not
// prefetched; callers re-read what they need.
func keysWithPrefix(txn *badger.Txn, prefix []byte) [][]byte {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// exists reports whether a key is present without reading its value.
func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
