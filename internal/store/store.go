// Package store implements the durable task record store.
//
// The index file is the source of truth for which records exist. Each record
// lives in its own file named after the record id. Records that fail to read
// or decode are quarantined in the index (valid=false) rather than dropped,
// so one corrupt file never takes down the rest of the data. Corruption of
// the index itself is fatal to enumeration; there is no fallback.
//
// Every public operation holds the store's exclusive lock for its full
// duration, so operations are atomic with respect to each other. Once an
// operation has started it runs to completion; context cancellation is
// checked only on entry, because abandoning a write mid-flight would risk
// index/record inconsistency.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/natefinch/atomic"

	"todostore/internal/task"
)

const (
	dirPerms  = 0o750
	filePerms = 0o600

	// lockFileName guards the data directory against a second store
	// instance. Sharing a directory across processes is unsupported.
	lockFileName = ".lock"

	recordExt = ".json"
)

// maxIDAttempts bounds id regeneration on the (effectively impossible)
// collision of two random UUIDs.
const maxIDAttempts = 5

// Store provides serialized, corruption-tolerant CRUD over task records.
type Store struct {
	dir       string
	indexPath string

	mu       sync.Mutex
	lockFile *os.File
	closed   bool
}

// Open prepares the data directory and takes the directory lock.
// The directory is created if it does not exist; a missing index file means
// an empty store.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("open store: directory is empty")
	}

	dir = filepath.Clean(dir)

	mkdirErr := os.MkdirAll(dir, dirPerms)
	if mkdirErr != nil {
		return nil, fmt.Errorf("open store: create data directory: %w", mkdirErr)
	}

	lockFile, lockErr := acquireDirLock(filepath.Join(dir, lockFileName))
	if lockErr != nil {
		return nil, fmt.Errorf("open store: %w", lockErr)
	}

	return &Store{
		dir:       dir,
		indexPath: filepath.Join(dir, IndexFileName),
		lockFile:  lockFile,
	}, nil
}

// acquireDirLock takes a non-blocking exclusive flock on the lock file.
// A held lock means another store instance owns the directory.
func acquireDirLock(path string) (*os.File, error) {
	file, openErr := os.OpenFile(path, os.O_CREATE|os.O_RDWR, filePerms)
	if openErr != nil {
		return nil, fmt.Errorf("opening lock file: %w", openErr)
	}

	flockErr := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if flockErr != nil {
		_ = file.Close()

		if flockErr == syscall.EWOULDBLOCK {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}

		return nil, fmt.Errorf("flock: %w", flockErr)
	}

	return file, nil
}

// Close releases the directory lock. Further operations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if s.lockFile != nil {
		_ = syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN)
		_ = s.lockFile.Close()
		s.lockFile = nil
	}

	return nil
}

// Dir returns the data directory the store operates on.
func (s *Store) Dir() string {
	return s.dir
}

// begin acquires the store lock after checking the context and closed state.
// The caller must defer s.mu.Unlock() on success.
func (s *Store) begin(ctx context.Context) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return ErrClosed
	}

	return nil
}

// LoadAll returns every record that decodes cleanly, in index order.
//
// A missing index file yields an empty result. Entries whose record file is
// missing or corrupt are flipped to invalid (and the updated index
// persisted) and skipped; no single corrupt record aborts the load.
func (s *Store) LoadAll(ctx context.Context) ([]task.Task, error) {
	beginErr := s.begin(ctx)
	if beginErr != nil {
		return nil, beginErr
	}

	defer s.mu.Unlock()

	ix, readErr := readIndex(s.indexPath)
	if readErr != nil {
		return nil, readErr
	}

	tasks := make([]task.Task, 0, len(ix.Entries))
	quarantined := false

	for i := range ix.Entries {
		entry := &ix.Entries[i]
		if !entry.Valid {
			continue
		}

		data, fileErr := os.ReadFile(filepath.Join(s.dir, entry.Location))
		if fileErr != nil {
			if !os.IsNotExist(fileErr) {
				return nil, fmt.Errorf("reading record %s: %w", entry.ID, fileErr)
			}

			entry.Valid = false
			quarantined = true

			continue
		}

		decoded, decodeErr := task.Decode(data)
		if decodeErr != nil || decoded.ID != entry.ID {
			entry.Valid = false
			quarantined = true

			continue
		}

		tasks = append(tasks, decoded)
	}

	if quarantined {
		writeErr := writeIndex(s.indexPath, ix)
		if writeErr != nil {
			return nil, writeErr
		}
	}

	return tasks, nil
}

// Create persists a new record and appends its index entry.
//
// The record file is written before the index is touched, so a failed record
// write leaves the index unchanged. A failed index write after a successful
// record write leaves an orphaned record file; orphans never corrupt the
// index and Repair sweeps them.
func (s *Store) Create(ctx context.Context, title, description string) (task.Task, error) {
	beginErr := s.begin(ctx)
	if beginErr != nil {
		return task.Task{}, beginErr
	}

	defer s.mu.Unlock()

	ix, readErr := readIndex(s.indexPath)
	if readErr != nil {
		return task.Task{}, readErr
	}

	t, genErr := newUniqueTask(&ix, title, description)
	if genErr != nil {
		return task.Task{}, genErr
	}

	location := t.ID + recordExt

	writeErr := s.writeRecord(location, t)
	if writeErr != nil {
		return task.Task{}, writeErr
	}

	ix.Entries = append(ix.Entries, Entry{ID: t.ID, Location: location, Valid: true})

	indexErr := writeIndex(s.indexPath, ix)
	if indexErr != nil {
		return task.Task{}, indexErr
	}

	return t, nil
}

// newUniqueTask builds a task whose id does not collide with any index
// entry, valid or not.
func newUniqueTask(ix *index, title, description string) (task.Task, error) {
	for i := 0; i < maxIDAttempts; i++ {
		t := task.New(title, description)
		if ix.find(t.ID) == nil {
			return t, nil
		}
	}

	return task.Task{}, ErrIDGenerationFailed
}

// Update overwrites the payload of an existing record in place.
// The index entry (location and validity) does not change on a content
// update. A record file found missing here flips the entry to invalid.
func (s *Store) Update(ctx context.Context, t task.Task) error {
	beginErr := s.begin(ctx)
	if beginErr != nil {
		return beginErr
	}

	defer s.mu.Unlock()

	ix, readErr := readIndex(s.indexPath)
	if readErr != nil {
		return readErr
	}

	entry := ix.find(t.ID)
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}

	if !entry.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidated, t.ID)
	}

	recordPath := filepath.Join(s.dir, entry.Location)

	_, statErr := os.Stat(recordPath)
	if statErr != nil {
		if !os.IsNotExist(statErr) {
			return fmt.Errorf("checking record %s: %w", t.ID, statErr)
		}

		entry.Valid = false

		indexErr := writeIndex(s.indexPath, ix)
		if indexErr != nil {
			return indexErr
		}

		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}

	return s.writeRecord(entry.Location, t)
}

// Delete removes a record's file and index entry.
// A missing record file is not an error at delete time.
func (s *Store) Delete(ctx context.Context, id string) error {
	beginErr := s.begin(ctx)
	if beginErr != nil {
		return beginErr
	}

	defer s.mu.Unlock()

	ix, readErr := readIndex(s.indexPath)
	if readErr != nil {
		return readErr
	}

	entry := ix.find(id)
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	removeErr := os.Remove(filepath.Join(s.dir, entry.Location))
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("removing record %s: %w", id, removeErr)
	}

	ix.remove(id)

	return writeIndex(s.indexPath, ix)
}

// GetByID returns the record with the given id, or nil if the id is absent
// or its entry is invalid. A valid entry whose record file is missing or
// corrupt is flipped to invalid before returning nil, lazily healing a
// stale index.
func (s *Store) GetByID(ctx context.Context, id string) (*task.Task, error) {
	beginErr := s.begin(ctx)
	if beginErr != nil {
		return nil, beginErr
	}

	defer s.mu.Unlock()

	ix, readErr := readIndex(s.indexPath)
	if readErr != nil {
		return nil, readErr
	}

	entry := ix.find(id)
	if entry == nil || !entry.Valid {
		return nil, nil
	}

	data, fileErr := os.ReadFile(filepath.Join(s.dir, entry.Location))
	if fileErr != nil {
		if !os.IsNotExist(fileErr) {
			return nil, fmt.Errorf("reading record %s: %w", id, fileErr)
		}

		return nil, s.quarantine(&ix, entry)
	}

	decoded, decodeErr := task.Decode(data)
	if decodeErr != nil || decoded.ID != id {
		return nil, s.quarantine(&ix, entry)
	}

	return &decoded, nil
}

// MarkInvalid idempotently quarantines the entry with the given id.
// Absent or already-invalid ids are a no-op success.
func (s *Store) MarkInvalid(ctx context.Context, id string) error {
	beginErr := s.begin(ctx)
	if beginErr != nil {
		return beginErr
	}

	defer s.mu.Unlock()

	ix, readErr := readIndex(s.indexPath)
	if readErr != nil {
		return readErr
	}

	entry := ix.find(id)
	if entry == nil || !entry.Valid {
		return nil
	}

	return s.quarantine(&ix, entry)
}

// quarantine flips an entry to invalid and persists the index.
// Caller must hold s.mu and pass an entry that points into ix.
func (s *Store) quarantine(ix *index, entry *Entry) error {
	entry.Valid = false

	return writeIndex(s.indexPath, *ix)
}

// Entries returns a copy of the current index entries in index order,
// including quarantined ones. Useful for diagnostics and repair tooling.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	beginErr := s.begin(ctx)
	if beginErr != nil {
		return nil, beginErr
	}

	defer s.mu.Unlock()

	ix, readErr := readIndex(s.indexPath)
	if readErr != nil {
		return nil, readErr
	}

	entries := make([]Entry, len(ix.Entries))
	copy(entries, ix.Entries)

	return entries, nil
}

// Orphans lists record files in the data directory that no index entry
// references. Orphans appear when a record write succeeded but the index
// append failed.
func (s *Store) Orphans(ctx context.Context) ([]string, error) {
	beginErr := s.begin(ctx)
	if beginErr != nil {
		return nil, beginErr
	}

	defer s.mu.Unlock()

	return s.orphansLocked()
}

func (s *Store) orphansLocked() ([]string, error) {
	ix, readErr := readIndex(s.indexPath)
	if readErr != nil {
		return nil, readErr
	}

	referenced := make(map[string]bool, len(ix.Entries))
	for _, entry := range ix.Entries {
		referenced[entry.Location] = true
	}

	dirEntries, dirErr := os.ReadDir(s.dir)
	if dirErr != nil {
		return nil, fmt.Errorf("reading data directory: %w", dirErr)
	}

	var orphans []string

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}

		name := dirEntry.Name()
		if name == IndexFileName || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}

		if !referenced[name] {
			orphans = append(orphans, name)
		}
	}

	return orphans, nil
}

// Repair removes orphaned record files and returns their names.
func (s *Store) Repair(ctx context.Context) ([]string, error) {
	beginErr := s.begin(ctx)
	if beginErr != nil {
		return nil, beginErr
	}

	defer s.mu.Unlock()

	orphans, orphansErr := s.orphansLocked()
	if orphansErr != nil {
		return nil, orphansErr
	}

	for _, name := range orphans {
		removeErr := os.Remove(filepath.Join(s.dir, name))
		if removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, fmt.Errorf("removing orphan %s: %w", name, removeErr)
		}
	}

	return orphans, nil
}

// writeRecord atomically writes one record file. Caller must hold s.mu.
func (s *Store) writeRecord(location string, t task.Task) error {
	data, encodeErr := task.Encode(t)
	if encodeErr != nil {
		return encodeErr
	}

	path := filepath.Join(s.dir, location)

	writeErr := atomic.WriteFile(path, bytes.NewReader(data))
	if writeErr != nil {
		return fmt.Errorf("writing record %s: %w", t.ID, writeErr)
	}

	// atomic.WriteFile doesn't set permissions for new files.
	chmodErr := os.Chmod(path, filePerms)
	if chmodErr != nil {
		return fmt.Errorf("setting record permissions: %w", chmodErr)
	}

	return nil
}
