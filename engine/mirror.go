// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/devres/driver"
)

// mirror keeps a device buffer holding one fixed-size
// record per table slot, indexed by resource id.
// Empty slots hold zeroed records.
type mirror[R any] struct {
	e         *Engine
	takeDirty func() bool
	markDirty func()
	each      func(fn func(id int, rec R))

	mu   sync.Mutex
	host []R
	buf  driver.Buffer
}

// newMirror creates a mirror of t whose records are
// produced by rec.
func newMirror[R any, T resource](e *Engine, t *table[T], rec func(T) R) (*mirror[R], error) {
	host := make([]R, t.cap())
	size := int64(binary.Size(host))
	if size <= 0 {
		return nil, errors.Newf("%s: record type is not fixed-size", t.kind)
	}
	buf, err := e.gpu.NewBuffer(size, false, driver.UShaderRead|driver.UCopyDst)
	if err != nil {
		return nil, errors.Wrapf(err, "%s record buffer of %d bytes", t.kind, size)
	}
	return &mirror[R]{
		e:         e,
		takeDirty: t.takeDirty,
		markDirty: t.markDirty,
		each: func(fn func(int, R)) {
			t.each(func(id int, res T) { fn(id, rec(res)) })
		},
		host: host,
		buf:  buf,
	}, nil
}

// republish copies the current records to the device
// buffer if the table changed since the last call.
// If commit is false, the copy is only enqueued.
// On failure, the table is marked stale again.
func (m *mirror[R]) republish(commit bool) error {
	if !m.takeDirty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Records must be gathered before recording starts.
	clear(m.host)
	m.each(func(id int, rec R) { m.host[id] = rec })
	data, err := binary.Append(nil, binary.LittleEndian, m.host)
	if err != nil {
		m.markDirty()
		return errors.Wrap(err, "record encoding failed")
	}

	t, err := m.e.transfer(func(w *work, _ *Transfer) error {
		return w.writeBuffer(m.buf, 0, data)
	}, commit)
	if err != nil {
		m.markDirty()
		return err
	}
	if !commit {
		m.e.sched.park(t.w.fence, t.w.fut, t.w.free)
	}
	return nil
}

// records returns a copy of the host records as of the
// last republish.
func (m *mirror[R]) records() []R {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]R(nil), m.host...)
}

func (m *mirror[R]) destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buf != nil {
		m.buf.Destroy()
		m.buf = nil
	}
}

// TextureRecords returns the device buffer holding one
// TextureRecord per texture id.
// Its contents are refreshed by Flush and SyncRecords.
func (e *Engine) TextureRecords() driver.Buffer { return e.texRecs.buf }

// MeshRecords returns the device buffer holding one
// MeshRecord per mesh id.
// Its contents are refreshed by Flush and SyncRecords.
func (e *Engine) MeshRecords() driver.Buffer { return e.meshRecs.buf }

// SyncRecords republishes stale record arrays and waits
// for the copies to complete.
func (e *Engine) SyncRecords() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return errors.CombineErrors(e.texRecs.republish(true), e.meshRecs.republish(true))
}
