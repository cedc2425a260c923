// Package repo maintains the in-process view of the task store.
//
// The Repository owns a single snapshot of all currently valid tasks. Reads
// are served from the snapshot; every mutation goes through the store first
// and patches the snapshot only after the store confirms persistence, then
// broadcasts the new snapshot to subscribers. The snapshot is replaced
// wholesale on every change, never mutated in place, so a reader holding a
// snapshot never sees a partial list.
//
// All repository-level mutations are serialized behind one mutex, so the
// order in which cache patches apply always matches the order in which the
// durable writes hit the store.
package repo

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"todostore/internal/store"
	"todostore/internal/task"
)

// Storage is the durable layer the repository writes through to.
// *store.Store satisfies it.
type Storage interface {
	LoadAll(ctx context.Context) ([]task.Task, error)
	Create(ctx context.Context, title, description string) (task.Task, error)
	Update(ctx context.Context, t task.Task) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*task.Task, error)
}

var _ Storage = (*store.Store)(nil)

// Repository is the single in-process source of truth for current tasks.
type Repository struct {
	storage Storage

	mu       sync.Mutex
	loaded   bool
	snapshot []task.Task
	subs     map[uint64]chan []task.Task
	nextSub  uint64
}

// New creates a repository over the given storage. The cache starts empty;
// callers should treat the pre-Load state as "unknown, not necessarily zero".
func New(storage Storage) *Repository {
	return &Repository{
		storage: storage,
		subs:    make(map[uint64]chan []task.Task),
	}
}

// Subscribe returns a channel that receives the full snapshot after the
// initial load and after every successful mutation. A new subscriber
// immediately receives the latest snapshot if one exists. Slow subscribers
// are conflated to the most recent value rather than blocking mutations.
// The returned cancel function releases the subscription; calling it more
// than once is safe.
func (r *Repository) Subscribe() (<-chan []task.Task, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan []task.Task, 1)
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch

	if r.loaded {
		ch <- slices.Clone(r.snapshot)
	}

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// broadcast pushes the current snapshot to every subscriber.
// Caller must hold r.mu. A pending undelivered value is replaced.
func (r *Repository) broadcast() {
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}

		ch <- slices.Clone(r.snapshot)
	}
}

// Load replaces the cached snapshot wholesale from the store and broadcasts
// it. On failure the previous snapshot is left untouched and still served.
func (r *Repository) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, loadErr := r.storage.LoadAll(ctx)
	if loadErr != nil {
		return fmt.Errorf("loading tasks: %w", loadErr)
	}

	r.snapshot = tasks
	r.loaded = true
	r.broadcast()

	return nil
}

// Add creates a task through the store, appends it to the snapshot
// (existing order preserved, new task last) and broadcasts.
func (r *Repository) Add(ctx context.Context, title, description string) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created, createErr := r.storage.Create(ctx, title, description)
	if createErr != nil {
		return task.Task{}, createErr
	}

	r.snapshot = append(slices.Clone(r.snapshot), created)
	r.broadcast()

	return created, nil
}

// Update writes the task through the store, replaces the matching snapshot
// element by id and broadcasts. On failure the cache is unchanged.
func (r *Repository) Update(ctx context.Context, t task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.updateLocked(ctx, t)
}

func (r *Repository) updateLocked(ctx context.Context, t task.Task) error {
	updateErr := r.storage.Update(ctx, t)
	if updateErr != nil {
		return updateErr
	}

	next := slices.Clone(r.snapshot)
	for i := range next {
		if next[i].ID == t.ID {
			next[i] = t

			break
		}
	}

	r.snapshot = next
	r.broadcast()

	return nil
}

// ToggleCompletion flips the completed flag of the cached task with the
// given id and writes it through. The lookup is cache-only: an id the cache
// does not hold is ErrNotFound even if the store might know it.
func (r *Repository) ToggleCompletion(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *task.Task

	for i := range r.snapshot {
		if r.snapshot[i].ID == id {
			found = &r.snapshot[i]

			break
		}
	}

	if found == nil {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}

	toggled := *found
	toggled.Completed = !toggled.Completed

	return r.updateLocked(ctx, toggled)
}

// Delete removes the task through the store, drops it from the snapshot and
// broadcasts. On failure the cache is unchanged.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleteErr := r.storage.Delete(ctx, id)
	if deleteErr != nil {
		return deleteErr
	}

	next := make([]task.Task, 0, len(r.snapshot))

	for _, t := range r.snapshot {
		if t.ID != id {
			next = append(next, t)
		}
	}

	r.snapshot = next
	r.broadcast()

	return nil
}

// GetByID serves from the cache when possible and falls through to the
// store otherwise. The fallthrough covers lookups before Load has populated
// the cache.
func (r *Repository) GetByID(ctx context.Context, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.snapshot {
		if r.snapshot[i].ID == id {
			found := r.snapshot[i]

			return &found, nil
		}
	}

	return r.storage.GetByID(ctx, id)
}

// Snapshot returns a copy of the current cached snapshot and whether a load
// has completed.
func (r *Repository) Snapshot() ([]task.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.snapshot), r.loaded
}
