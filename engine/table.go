// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gviegas/devres/internal/bitvec"
)

// resource is the constraint of table elements.
type resource interface {
	// release frees the resource's device memory.
	// It is called exactly once, when the resource
	// is removed from its table.
	release() error
}

// entry is the slot content of a table.
// A new entry is created for every incarnation of a
// slot, so a reader holding a stale *entry never
// observes a different resource.
type entry[T resource] struct {
	id       int
	name     string
	external bool
	ready    atomic.Bool
	res      T
}

// table is a fixed-capacity registry of named resources.
// Creation and deletion serialize on a single mutex.
// Lookups are lock-free.
type table[T resource] struct {
	kind  string
	log   *log.Entry
	mu    sync.Mutex
	free  *bitvec.V[uint64]
	slots []atomic.Pointer[entry[T]]
	names sync.Map
	dirty atomic.Bool
	count atomic.Int64
}

// newTable creates a new table with the given capacity.
func newTable[T resource](kind string, capacity int, logger *log.Entry) *table[T] {
	return &table[T]{
		kind:  kind,
		log:   logger.WithField("table", kind),
		free:  bitvec.New[uint64](capacity),
		slots: make([]atomic.Pointer[entry[T]], capacity),
	}
}

// create reserves the lowest free slot for name and
// calls build to construct its resource.
// If build fails, the slot is deleted and build's
// error is returned unchanged. A panic in build is
// rolled back the same way and reported as an error.
// The resource's release method is not called in this
// case, so build must clean up after itself.
// Only one call to create or delete runs at a time.
func (t *table[T]) create(name string, external bool, build func(id int) (T, error)) (res T, err error) {
	if name == "" {
		err = errors.Wrapf(ErrInvalidParam, "%s: empty name", t.kind)
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.names.Load(name); ok {
		err = errors.Wrapf(ErrDuplicateName, "%s %q", t.kind, name)
		return
	}
	id, ok := t.free.Search()
	if !ok || id >= len(t.slots) {
		err = errors.Wrapf(ErrCapacityExceeded, "%s table holds %d entries", t.kind, len(t.slots))
		return
	}
	t.free.Set(id)
	e := &entry[T]{id: id, name: name, external: external}
	t.slots[id].Store(e)
	t.names.Store(name, id)

	if res, err = t.build(id, name, build); err != nil {
		t.names.Delete(name)
		t.slots[id].Store(nil)
		t.free.Unset(id)
		t.log.WithError(err).WithField("name", name).Debug("creation rolled back")
		return
	}
	e.res = res
	e.ready.Store(true)
	t.count.Add(1)
	t.dirty.Store(true)
	t.log.WithFields(log.Fields{"name": name, "id": id}).Debug("created")
	return
}

// build calls fn, turning a panic into an error.
func (t *table[T]) build(id int, name string, fn func(id int) (T, error)) (res T, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = errors.Newf("%s %q: build panicked: %v", t.kind, name, x)
		}
	}()
	return fn(id)
}

// get returns the resource identified by name.
func (t *table[T]) get(name string) (res T, err error) {
	id, ok := t.names.Load(name)
	if !ok {
		err = errors.Wrapf(ErrNotFound, "%s %q", t.kind, name)
		return
	}
	e := t.slots[id.(int)].Load()
	if e == nil || e.name != name {
		err = errors.Wrapf(ErrNotFound, "%s %q", t.kind, name)
		return
	}
	return t.resolve(e)
}

// getID returns the resource identified by id.
func (t *table[T]) getID(id int) (res T, err error) {
	if id < 0 || id >= len(t.slots) {
		err = errors.Wrapf(ErrNotFound, "%s id %d", t.kind, id)
		return
	}
	e := t.slots[id].Load()
	if e == nil {
		err = errors.Wrapf(ErrNotFound, "%s id %d", t.kind, id)
		return
	}
	return t.resolve(e)
}

func (t *table[T]) resolve(e *entry[T]) (res T, err error) {
	if !e.ready.Load() {
		err = errors.Wrapf(ErrNotReady, "%s %q", t.kind, e.name)
		return
	}
	return e.res, nil
}

// delete removes the resource identified by name.
// It is a no-op if no such resource exists.
func (t *table[T]) delete(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.names.Load(name)
	if !ok {
		return nil
	}
	return t.deleteLocked(id.(int))
}

// deleteID removes the resource identified by id.
// It is a no-op if no such resource exists.
func (t *table[T]) deleteID(id int) error {
	if id < 0 || id >= len(t.slots) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleteLocked(id)
}

// deleteLocked releases and clears a slot.
// The slot is cleared even if release fails or panics.
// t.mu must be held.
func (t *table[T]) deleteLocked(id int) (err error) {
	if !t.free.IsSet(id) {
		return nil
	}
	e := t.slots[id].Load()
	t.names.Delete(e.name)
	e.ready.Store(false)
	defer func() {
		if x := recover(); x != nil {
			err = errors.Newf("%s %q: release panicked: %v", t.kind, e.name, x)
		}
		t.slots[id].Store(nil)
		t.free.Unset(id)
		t.count.Add(-1)
		t.dirty.Store(true)
		l := t.log.WithFields(log.Fields{"name": e.name, "id": id})
		if err != nil {
			l.WithError(err).Error("release failed")
		} else {
			l.Debug("deleted")
		}
	}()
	return e.res.release()
}

// clear deletes every resource in t.
func (t *table[T]) clear() (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.free.Ones() {
		err = errors.CombineErrors(err, t.deleteLocked(id))
	}
	t.free.Clear()
	return
}

// each calls fn for every ready resource, in id order.
// It does not lock t.
func (t *table[T]) each(fn func(id int, res T)) {
	for i := range t.slots {
		if e := t.slots[i].Load(); e != nil && e.ready.Load() {
			fn(i, e.res)
		}
	}
}

// len returns the number of ready resources.
func (t *table[_]) len() int { return int(t.count.Load()) }

// cap returns the capacity of t.
func (t *table[_]) cap() int { return len(t.slots) }

// markDirty marks the table's mirror as stale.
func (t *table[_]) markDirty() { t.dirty.Store(true) }

// takeDirty clears the dirty flag and returns its
// previous value.
func (t *table[_]) takeDirty() bool { return t.dirty.Swap(false) }
