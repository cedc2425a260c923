package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// IndexFileName is the index file inside the data directory.
const IndexFileName = "index.json"

// Entry references one record file and records whether its payload is
// currently trusted. Quarantined entries (Valid=false) are kept for
// traceability and never removed by corruption handling.
type Entry struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Valid    bool   `json:"valid"`
}

// index is the authoritative enumeration of which records exist.
// Entry order is insertion order; it carries no other meaning.
type index struct {
	Entries []Entry `json:"entries"`
}

// find returns a pointer to the entry with the given id, or nil.
// At most one entry per id exists.
func (ix *index) find(id string) *Entry {
	for i := range ix.Entries {
		if ix.Entries[i].ID == id {
			return &ix.Entries[i]
		}
	}

	return nil
}

// remove deletes the entry with the given id, preserving the order of the
// remaining entries. Reports whether an entry was removed.
func (ix *index) remove(id string) bool {
	for i := range ix.Entries {
		if ix.Entries[i].ID == id {
			ix.Entries = append(ix.Entries[:i], ix.Entries[i+1:]...)

			return true
		}
	}

	return false
}

// readIndex loads the index file. A missing file is an empty index, not an
// error. A file that exists but cannot be decoded is ErrIndexUnreadable.
func readIndex(path string) (index, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return index{}, nil
		}

		return index{}, fmt.Errorf("reading index: %w", readErr)
	}

	var ix index

	unmarshalErr := json.Unmarshal(data, &ix)
	if unmarshalErr != nil {
		return index{}, fmt.Errorf("%w: %w", ErrIndexUnreadable, unmarshalErr)
	}

	for i, entry := range ix.Entries {
		if entry.ID == "" || entry.Location == "" {
			return index{}, fmt.Errorf("%w: entry %d missing id or location", ErrIndexUnreadable, i)
		}
	}

	return ix, nil
}

// writeIndex persists the index atomically so a crash never leaves a torn
// index file.
func writeIndex(path string, ix index) error {
	if ix.Entries == nil {
		ix.Entries = []Entry{}
	}

	data, marshalErr := json.MarshalIndent(ix, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("encoding index: %w", marshalErr)
	}

	data = append(data, '\n')

	writeErr := atomic.WriteFile(path, bytes.NewReader(data))
	if writeErr != nil {
		return fmt.Errorf("writing index: %w", writeErr)
	}

	chmodErr := os.Chmod(path, filePerms)
	if chmodErr != nil {
		return fmt.Errorf("setting index permissions: %w", chmodErr)
	}

	return nil
}
