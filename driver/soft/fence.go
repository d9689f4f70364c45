// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/devres/driver"
)

// fence implements driver.Fence.
type fence struct {
	g        *GPU
	mu       sync.Mutex
	done     chan struct{}
	err      error
	pending  bool
	signaled bool
	dead     bool
}

// NewFence creates a new fence.
func (g *GPU) NewFence() (driver.Fence, error) {
	g.nfence.Add(1)
	return &fence{g: g, done: make(chan struct{})}, nil
}

// arm marks f as in use by a commit.
func (f *fence) arm() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending || f.signaled || f.dead {
		return false
	}
	f.pending = true
	return true
}

func (f *fence) disarm() {
	f.mu.Lock()
	f.pending = false
	f.mu.Unlock()
}

// signal is called from the queue goroutine when the
// batch that f guards completes.
func (f *fence) signal(err error) {
	f.mu.Lock()
	f.err = err
	f.pending = false
	f.signaled = true
	close(f.done)
	f.mu.Unlock()
}

// Wait waits for f to be signaled.
func (f *fence) Wait(timeout time.Duration) error {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if timeout <= 0 {
		select {
		case <-done:
		default:
			return driver.ErrTimeout
		}
	} else {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		select {
		case <-done:
		case <-tm.C:
			return driver.ErrTimeout
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Signaled returns whether f is signaled.
func (f *fence) Signaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

// Reset unsignals f.
func (f *fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending {
		return errors.New("soft: cannot reset a pending fence")
	}
	if f.signaled {
		f.done = make(chan struct{})
		f.signaled = false
		f.err = nil
	}
	return nil
}

// Destroy destroys f.
func (f *fence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead {
		return
	}
	if f.pending {
		panic("soft: fence destroyed while pending")
	}
	f.dead = true
	f.g.nfence.Add(-1)
}
