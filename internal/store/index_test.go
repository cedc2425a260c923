package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadIndexMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	ix, err := readIndex(filepath.Join(t.TempDir(), IndexFileName))
	if err != nil {
		t.Fatalf("read missing index: %v", err)
	}

	if len(ix.Entries) != 0 {
		t.Errorf("missing index yielded %d entries", len(ix.Entries))
	}
}

func TestWriteThenReadIndexPreservesOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), IndexFileName)

	want := index{Entries: []Entry{
		{ID: "b", Location: "b.json", Valid: true},
		{ID: "a", Location: "a.json", Valid: false},
		{ID: "c", Location: "c.json", Valid: true},
	}}

	writeErr := writeIndex(path, want)
	if writeErr != nil {
		t.Fatalf("write index: %v", writeErr)
	}

	got, readErr := readIndex(path)
	if readErr != nil {
		t.Fatalf("read index: %v", readErr)
	}

	if len(got.Entries) != len(want.Entries) {
		t.Fatalf("entries = %d, want %d", len(got.Entries), len(want.Entries))
	}

	for i := range want.Entries {
		if got.Entries[i] != want.Entries[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got.Entries[i], want.Entries[i])
		}
	}
}

func TestReadIndexRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), IndexFileName)

	writeErr := os.WriteFile(path, []byte("not json"), 0o600)
	if writeErr != nil {
		t.Fatal(writeErr)
	}

	_, err := readIndex(path)
	if !errors.Is(err, ErrIndexUnreadable) {
		t.Errorf("readIndex = %v, want ErrIndexUnreadable", err)
	}
}

func TestReadIndexRejectsEntryWithoutLocation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), IndexFileName)

	writeErr := os.WriteFile(path, []byte(`{"entries":[{"id":"a","valid":true}]}`), 0o600)
	if writeErr != nil {
		t.Fatal(writeErr)
	}

	_, err := readIndex(path)
	if !errors.Is(err, ErrIndexUnreadable) {
		t.Errorf("readIndex = %v, want ErrIndexUnreadable", err)
	}
}

func TestIndexFindAndRemove(t *testing.T) {
	t.Parallel()

	ix := index{Entries: []Entry{
		{ID: "a", Location: "a.json", Valid: true},
		{ID: "b", Location: "b.json", Valid: true},
	}}

	if ix.find("b") == nil {
		t.Fatal("find failed for present id")
	}

	if ix.find("z") != nil {
		t.Fatal("find returned entry for absent id")
	}

	if !ix.remove("a") {
		t.Fatal("remove reported false for present id")
	}

	if ix.remove("a") {
		t.Fatal("remove reported true for already-removed id")
	}

	if len(ix.Entries) != 1 || ix.Entries[0].ID != "b" {
		t.Errorf("remaining entries = %+v, want only b", ix.Entries)
	}
}
