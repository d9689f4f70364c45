// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/devres/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	g       *GPU
	visible bool
	usg     driver.Usage
	size    int64

	mu   sync.Mutex
	data []byte
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.Newf("soft: invalid buffer size %d", size)
	}
	if size > g.limits.MaxBuffer || g.allocFails() {
		return nil, driver.ErrNoDeviceMemory
	}
	g.nbuf.Add(1)
	return &buffer{
		g:       g,
		visible: visible,
		usg:     usg,
		size:    size,
		data:    make([]byte, size),
	}, nil
}

// Visible returns whether b is host visible.
func (b *buffer) Visible() bool { return b.visible }

// Bytes returns the contents of b if it is host visible.
func (b *buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Cap returns the size of b in bytes.
func (b *buffer) Cap() int64 { return b.size }

// Destroy destroys b.
func (b *buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data != nil {
		b.data = nil
		b.g.nbuf.Add(-1)
	}
}

// span returns the byte range [off, off+n) of b.
// It is called from the queue goroutine.
func (b *buffer) span(off, n int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.data == nil:
		return nil, errors.New("soft: buffer used after Destroy")
	case off < 0 || n < 0 || off+n > b.size:
		return nil, errors.Newf("soft: buffer range [%d, %d) out of bounds (size %d)", off, off+n, b.size)
	}
	return b.data[off : off+n], nil
}

// Buffer returns a copy of the contents of buf, whether
// it is host visible or not.
// It is intended for tests.
func Buffer(buf driver.Buffer) []byte {
	b := buf.(*buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}
