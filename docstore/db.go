package docstore

import (
	"context"

	"github.com/pkg/errors"
)

// DB is an embedded JSON document store. Documents are grouped in
// collections and addressed by a string key unique within the collection.
type DB struct {
	e *engine
}

type UserCallback func(tx *Tx) error

type Closer func() error

func NullCloser() error { return nil }

// Open loads the database file at path, creating it when missing.
// Pass InMemory to keep everything in memory.
func Open(path string, cfg *Config) (*DB, Closer, error) {
	c, err := cfg.withDefaults()
	if err != nil {
		return nil, NullCloser, err
	}

	e := newEngine(path, c)
	if err := e.init(); err != nil {
		return nil, NullCloser, err
	}

	db := DB{e: e}

	return &db, db.close, nil
}

func (db *DB) close() error {
	return db.e.close()
}

// OnBackgroundError sets a handler for errors of async flushes and auto vacuum.
func (db *DB) OnBackgroundError(fn func(err error)) {
	db.e.mu.Lock()
	defer db.e.mu.Unlock()
	db.e.onError = fn
}

func (db *DB) Count(collection string) int {
	db.e.mu.RLock()
	defer db.e.mu.RUnlock()

	return db.e.count(collection)
}

// Vacuum compacts the database file right away.
func (db *DB) Vacuum() error {
	db.e.mu.Lock()
	defer db.e.mu.Unlock()

	if db.e.closed {
		return ErrDatabaseAlreadyClosed
	}

	return db.e.runVacuumUnderLock()
}

// View runs cb in a read only transaction. Any number of views run concurrently.
func (db *DB) View(ctx context.Context, cb UserCallback) error {
	db.e.mu.RLock()
	defer db.e.mu.RUnlock()

	if db.e.closed {
		return ErrDatabaseAlreadyClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &Tx{e: db.e, ctx: ctx, readOnly: true}

	if err := cb(tx); err != nil {
		return errors.Wrap(err, "db read failed")
	}

	return nil
}

// Update runs cb in an exclusive read-write transaction. Changes are
// persisted when cb returns nil and rolled back otherwise.
func (db *DB) Update(ctx context.Context, cb UserCallback) (err error) {
	db.e.mu.Lock()
	defer db.e.mu.Unlock()

	if db.e.closed {
		return ErrDatabaseAlreadyClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &Tx{e: db.e, ctx: ctx}

	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := cb(tx); err != nil {
		tx.rollback()
		return errors.Wrap(err, "db write failed. rolled back")
	}

	return tx.commit()
}
