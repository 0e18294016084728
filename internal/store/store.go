// Package store provides the shared session store: a hierarchical
// key-value store with point reads/writes, optimistic compare-and-retry
// transactions on a versioned record, and a per-subtree change feed.
//
// All mutual exclusion in the server comes from Transact. There is no
// owning process per record; handlers race freely and serialize only
// through the store's version check.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an absent record.
var ErrNotFound = errors.New("store: record not found")

// ErrAbort is returned by a transaction body to abort cleanly: the record
// is left untouched and Transact reports committed=false with no error.
var ErrAbort = errors.New("store: transaction aborted")

// ErrContention is wrapped into the error returned when a transaction
// could not commit within the bounded number of retries.
var ErrContention = errors.New("store: transaction contention")

// TxFunc computes the next value of a record from its current raw JSON
// document (nil when the record is absent). Returning (nil, nil) deletes
// the record. The body may be re-invoked any number of times and must be
// a pure function of its input: no side effects, no fresh randomness,
// no reading the clock.
type TxFunc func(current []byte) ([]byte, error)

// Event is one change-feed notification. Data is the new document, or nil
// when the record was deleted.
type Event struct {
	Path string
	Data []byte
}

// Store is the narrow transactional interface the coordination layer is
// built on. Implementations: Memory (tests, development) and Postgres.
type Store interface {
	// Get reads the record at path into v. Returns ErrNotFound if absent.
	Get(ctx context.Context, path string, v any) error

	// Put unconditionally writes v at path.
	Put(ctx context.Context, path string, v any) error

	// Delete removes the record at path. Deleting an absent record is not
	// an error.
	Delete(ctx context.Context, path string) error

	// List returns the raw documents of all records whose path starts
	// with prefix, keyed by full path.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// Transact runs fn against the record at path with compare-and-retry
	// semantics: if the record changed between the read and the
	// conditional write, fn is re-run against the fresh value. Reports
	// whether a write was committed. A fn returning ErrAbort yields
	// (false, nil); any other error from fn is returned as-is.
	Transact(ctx context.Context, path string, fn TxFunc) (bool, error)

	// Watch subscribes to changes of all records under prefix. The
	// returned cancel func must be called to release the subscription.
	// Slow consumers may miss events; the feed is a refresh signal, not
	// a replicated log.
	Watch(prefix string) (<-chan Event, func())
}
