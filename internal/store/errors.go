package store

import "errors"

// Error variables for store operations.
var (
	// ErrIndexUnreadable reports an index file that exists but cannot be
	// decoded. There is no fallback enumeration mechanism, so this is fatal
	// to the operation that hit it.
	ErrIndexUnreadable = errors.New("index unreadable")

	// ErrNotFound reports an id that is absent from the index or whose
	// entry turned out to be stale.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidated reports an id whose index entry is quarantined.
	ErrInvalidated = errors.New("task invalidated")

	// ErrLocked reports a data directory already held by another store.
	ErrLocked = errors.New("data directory locked by another store")

	// ErrClosed reports use of a store after Close.
	ErrClosed = errors.New("store is closed")

	// ErrIDGenerationFailed reports that no unique id could be generated.
	ErrIDGenerationFailed = errors.New("no unique id after repeated attempts")
)
