package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"todostore/internal/store"
	"todostore/internal/task"
)

func openStore(t *testing.T) (*store.Store, string) {
	t.Helper()

	dir := t.TempDir()

	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s, dir
}

func mustCreate(t *testing.T, s *store.Store, title string) task.Task {
	t.Helper()

	created, err := s.Create(context.Background(), title, "")
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}

	return created
}

// readIndexFile decodes the raw index file, bypassing the store.
func readIndexFile(t *testing.T, dir string) []store.Entry {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, store.IndexFileName))
	if err != nil {
		t.Fatalf("read index file: %v", err)
	}

	var ix struct {
		Entries []store.Entry `json:"entries"`
	}

	unmarshalErr := json.Unmarshal(data, &ix)
	if unmarshalErr != nil {
		t.Fatalf("decode index file: %v", unmarshalErr)
	}

	return ix.Entries
}

func TestLoadAllEmptyStore(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	tasks, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}

	if len(tasks) != 0 {
		t.Errorf("expected empty store, got %d tasks", len(tasks))
	}
}

func TestCreateThenGetByIDRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	created := mustCreate(t, s, "Buy milk")

	got, err := s.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}

	if got == nil {
		t.Fatal("get by id returned nil for freshly created task")
	}

	if diff := cmp.Diff(created, *got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateSameTitleDistinctIDsAndLocations(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	first := mustCreate(t, s, "Buy milk")
	second := mustCreate(t, s, "Buy milk")

	if first.ID == second.ID {
		t.Fatalf("two creates share id %q", first.ID)
	}

	entries := readIndexFile(t, dir)
	if len(entries) != 2 {
		t.Fatalf("index has %d entries, want 2", len(entries))
	}

	if entries[0].Location == entries[1].Location {
		t.Errorf("two creates share location %q", entries[0].Location)
	}
}

func TestIndexIntegrityAfterCreateDeleteSequence(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	var kept []string

	for i, title := range []string{"a", "b", "c", "d", "e"} {
		created := mustCreate(t, s, title)

		if i%2 == 0 {
			kept = append(kept, created.ID)

			continue
		}

		deleteErr := s.Delete(context.Background(), created.ID)
		if deleteErr != nil {
			t.Fatalf("delete: %v", deleteErr)
		}
	}

	entries := readIndexFile(t, dir)

	validCount := 0

	for _, e := range entries {
		if e.Valid {
			validCount++
		}
	}

	if validCount != len(kept) {
		t.Errorf("valid entries = %d, want %d (records never deleted)", validCount, len(kept))
	}
}

func TestLoadAllQuarantinesMissingRecordFile(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	tasks := []task.Task{
		mustCreate(t, s, "one"),
		mustCreate(t, s, "two"),
		mustCreate(t, s, "three"),
	}

	// Delete the middle record's file out-of-band.
	entries := readIndexFile(t, dir)

	removeErr := os.Remove(filepath.Join(dir, entries[1].Location))
	if removeErr != nil {
		t.Fatalf("remove record file: %v", removeErr)
	}

	loaded, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}

	if len(loaded) != len(tasks)-1 {
		t.Fatalf("loaded %d tasks, want %d", len(loaded), len(tasks)-1)
	}

	entries = readIndexFile(t, dir)
	if entries[1].Valid {
		t.Error("missing record's entry still valid after load")
	}

	if !entries[0].Valid || !entries[2].Valid {
		t.Error("healthy entries were quarantined")
	}

	// A second load returns the same result without re-flipping anything.
	again, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("second load all: %v", err)
	}

	if diff := cmp.Diff(loaded, again); diff != "" {
		t.Errorf("second load differs (-first +second):\n%s", diff)
	}
}

func TestLoadAllQuarantinesCorruptRecordFile(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	created := mustCreate(t, s, "soon corrupt")
	mustCreate(t, s, "healthy")

	writeErr := os.WriteFile(filepath.Join(dir, created.ID+".json"), []byte("not json at all"), 0o600)
	if writeErr != nil {
		t.Fatalf("corrupt record file: %v", writeErr)
	}

	loaded, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}

	if len(loaded) != 1 {
		t.Fatalf("loaded %d tasks, want 1", len(loaded))
	}

	if loaded[0].Title != "healthy" {
		t.Errorf("surviving task = %q, want %q", loaded[0].Title, "healthy")
	}

	entries := readIndexFile(t, dir)
	if len(entries) != 2 {
		t.Fatalf("corruption removed index entries: %d left, want 2", len(entries))
	}

	if entries[0].Valid {
		t.Error("corrupt record's entry still valid")
	}
}

func TestLoadAllFailsWhenIndexUnreadable(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	mustCreate(t, s, "exists")

	writeErr := os.WriteFile(filepath.Join(dir, store.IndexFileName), []byte("{{{{"), 0o600)
	if writeErr != nil {
		t.Fatalf("corrupt index: %v", writeErr)
	}

	_, err := s.LoadAll(context.Background())
	if !errors.Is(err, store.ErrIndexUnreadable) {
		t.Errorf("LoadAll error = %v, want ErrIndexUnreadable", err)
	}
}

func TestUpdatePersistsNewPayload(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	created := mustCreate(t, s, "old title")
	created.Title = "new title"
	created.Completed = true

	updateErr := s.Update(context.Background(), created)
	if updateErr != nil {
		t.Fatalf("update: %v", updateErr)
	}

	got, err := s.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}

	if got == nil || got.Title != "new title" || !got.Completed {
		t.Errorf("update not persisted, got %+v", got)
	}
}

func TestUpdateUnknownIDFails(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	unknown := task.New("never stored", "")

	err := s.Update(context.Background(), unknown)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update error = %v, want ErrNotFound", err)
	}
}

func TestUpdateInvalidatedEntryFails(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	created := mustCreate(t, s, "quarantine me")

	markErr := s.MarkInvalid(context.Background(), created.ID)
	if markErr != nil {
		t.Fatalf("mark invalid: %v", markErr)
	}

	err := s.Update(context.Background(), created)
	if !errors.Is(err, store.ErrInvalidated) {
		t.Errorf("Update error = %v, want ErrInvalidated", err)
	}
}

func TestUpdateMissingFileQuarantinesAndFails(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	created := mustCreate(t, s, "doomed")

	removeErr := os.Remove(filepath.Join(dir, created.ID+".json"))
	if removeErr != nil {
		t.Fatalf("remove record file: %v", removeErr)
	}

	err := s.Update(context.Background(), created)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Update error = %v, want ErrNotFound", err)
	}

	entries := readIndexFile(t, dir)
	if entries[0].Valid {
		t.Error("entry still valid after update hit a missing file")
	}
}

func TestDeleteAbsentIDLeavesIndexUnchanged(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	mustCreate(t, s, "keep me")

	before := readIndexFile(t, dir)

	err := s.Delete(context.Background(), "00000000-0000-4000-8000-000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Delete error = %v, want ErrNotFound", err)
	}

	after := readIndexFile(t, dir)

	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("index changed by failed delete (-before +after):\n%s", diff)
	}
}

func TestDeleteToleratesMissingRecordFile(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	created := mustCreate(t, s, "file gone")

	removeErr := os.Remove(filepath.Join(dir, created.ID+".json"))
	if removeErr != nil {
		t.Fatalf("remove record file: %v", removeErr)
	}

	deleteErr := s.Delete(context.Background(), created.ID)
	if deleteErr != nil {
		t.Fatalf("delete with missing file: %v", deleteErr)
	}

	entries := readIndexFile(t, dir)
	if len(entries) != 0 {
		t.Errorf("index has %d entries after delete, want 0", len(entries))
	}
}

func TestGetByIDAbsentAndInvalidReturnNil(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	got, err := s.GetByID(context.Background(), "00000000-0000-4000-8000-000000000000")
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}

	if got != nil {
		t.Errorf("get absent = %+v, want nil", got)
	}

	created := mustCreate(t, s, "quarantined")

	markErr := s.MarkInvalid(context.Background(), created.ID)
	if markErr != nil {
		t.Fatalf("mark invalid: %v", markErr)
	}

	got, err = s.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get invalid: %v", err)
	}

	if got != nil {
		t.Errorf("get invalid = %+v, want nil", got)
	}
}

func TestGetByIDHealsStaleEntry(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	created := mustCreate(t, s, "stale")

	removeErr := os.Remove(filepath.Join(dir, created.ID+".json"))
	if removeErr != nil {
		t.Fatalf("remove record file: %v", removeErr)
	}

	got, err := s.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get stale: %v", err)
	}

	if got != nil {
		t.Errorf("get stale = %+v, want nil", got)
	}

	entries := readIndexFile(t, dir)
	if entries[0].Valid {
		t.Error("stale entry not quarantined by GetByID")
	}
}

func TestMarkInvalidIsIdempotent(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	created := mustCreate(t, s, "flip me")

	firstErr := s.MarkInvalid(context.Background(), created.ID)
	if firstErr != nil {
		t.Fatalf("first mark invalid: %v", firstErr)
	}

	afterFirst := readIndexFile(t, dir)

	secondErr := s.MarkInvalid(context.Background(), created.ID)
	if secondErr != nil {
		t.Fatalf("second mark invalid: %v", secondErr)
	}

	afterSecond := readIndexFile(t, dir)

	if diff := cmp.Diff(afterFirst, afterSecond); diff != "" {
		t.Errorf("second MarkInvalid changed the index (-first +second):\n%s", diff)
	}

	// Absent id is a no-op success.
	absentErr := s.MarkInvalid(context.Background(), "00000000-0000-4000-8000-000000000000")
	if absentErr != nil {
		t.Errorf("mark invalid absent id: %v", absentErr)
	}
}

func TestRepairSweepsOrphans(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)

	mustCreate(t, s, "referenced")

	orphan := task.New("orphan", "")

	data, encodeErr := task.Encode(orphan)
	if encodeErr != nil {
		t.Fatalf("encode orphan: %v", encodeErr)
	}

	writeErr := os.WriteFile(filepath.Join(dir, orphan.ID+".json"), data, 0o600)
	if writeErr != nil {
		t.Fatalf("write orphan file: %v", writeErr)
	}

	orphans, err := s.Orphans(context.Background())
	if err != nil {
		t.Fatalf("orphans: %v", err)
	}

	if len(orphans) != 1 || orphans[0] != orphan.ID+".json" {
		t.Fatalf("orphans = %v, want [%s]", orphans, orphan.ID+".json")
	}

	removed, err := s.Repair(context.Background())
	if err != nil {
		t.Fatalf("repair: %v", err)
	}

	if len(removed) != 1 {
		t.Fatalf("repair removed %d files, want 1", len(removed))
	}

	_, statErr := os.Stat(filepath.Join(dir, orphan.ID+".json"))
	if !os.IsNotExist(statErr) {
		t.Error("orphan file still present after repair")
	}

	// The referenced record survived.
	tasks, loadErr := s.LoadAll(context.Background())
	if loadErr != nil {
		t.Fatalf("load all after repair: %v", loadErr)
	}

	if len(tasks) != 1 {
		t.Errorf("repair removed a referenced record: %d tasks left", len(tasks))
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	closeErr := s.Close()
	if closeErr != nil {
		t.Fatalf("close: %v", closeErr)
	}

	_, err := s.LoadAll(context.Background())
	if !errors.Is(err, store.ErrClosed) {
		t.Errorf("LoadAll after close = %v, want ErrClosed", err)
	}
}

func TestSecondOpenOnSameDirFails(t *testing.T) {
	t.Parallel()

	s, dir := openStore(t)
	_ = s

	_, err := store.Open(dir)
	if !errors.Is(err, store.ErrLocked) {
		t.Errorf("second Open = %v, want ErrLocked", err)
	}
}

func TestCanceledContextRejectedBeforeLock(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.LoadAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("LoadAll with canceled ctx = %v, want context.Canceled", err)
	}
}
