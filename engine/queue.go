// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gviegas/devres/driver"
)

// Future is the outcome of work enqueued in a Scheduler.
// It resolves when the work is handed to the device (or
// run, in the case of present work). Completion of the
// device work itself is observed through Complete.
type Future struct {
	fence driver.Fence
	done  chan struct{}
	err   error
}

func newFuture(fence driver.Fence) *Future {
	return &Future{fence: fence, done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Done returns a channel that is closed when f resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Resolved returns whether f has resolved.
func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until f resolves or ctx is done.
// It returns the error with which f resolved.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete blocks until f resolves and its fence, if any,
// is signaled. The whole wait is bounded by timeout.
// It returns an error wrapping ErrDeviceTimeout if the
// deadline expires.
func (f *Future) Complete(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	tm := time.NewTimer(timeout)
	defer tm.Stop()
	select {
	case <-f.done:
	case <-tm.C:
		return errors.Wrap(ErrDeviceTimeout, "work never submitted")
	}
	if f.err != nil {
		return f.err
	}
	if f.fence == nil {
		return nil
	}
	switch err := f.fence.Wait(max(0, time.Until(deadline))); {
	case errors.Is(err, driver.ErrTimeout):
		return errors.Wrapf(ErrDeviceTimeout, "fence not signaled after %v", timeout)
	case err != nil:
		return errors.Wrap(err, "device execution failed")
	}
	return nil
}

type batch struct {
	cb    []driver.CmdBuffer
	fence driver.Fence
	fut   *Future
}

type presentWork struct {
	fn  func() error
	fut *Future
}

// parked holds temporaries that cannot be released
// until a fence signals.
type parked struct {
	fence   driver.Fence
	fut     *Future
	release func()
}

// Scheduler batches recorded device work.
// It keeps two FIFO queues, one for graphics work and one
// for present work. Enqueuing never blocks; queued work
// reaches the device only when SubmitAll (or PresentAll)
// is called.
type Scheduler struct {
	gpu     driver.GPU
	timeout time.Duration
	log     *log.Entry

	mu       sync.Mutex
	graphics []batch
	present  []presentWork

	// submitMu serializes SubmitAll calls so batches
	// reach the device in enqueue order.
	submitMu sync.Mutex

	parkMu sync.Mutex
	parked []parked
}

func newScheduler(gpu driver.GPU, timeout time.Duration, logger *log.Entry) *Scheduler {
	return &Scheduler{
		gpu:     gpu,
		timeout: timeout,
		log:     logger.WithField("component", "scheduler"),
	}
}

// Enqueue appends a batch of command buffers to the
// graphics queue. fence is signaled by the device when
// the batch completes execution.
// The command buffers must have ended recording.
func (s *Scheduler) Enqueue(cb []driver.CmdBuffer, fence driver.Fence) *Future {
	fut := newFuture(fence)
	s.mu.Lock()
	s.graphics = append(s.graphics, batch{cb, fence, fut})
	s.mu.Unlock()
	return fut
}

// EnqueuePresent appends fn to the present queue.
func (s *Scheduler) EnqueuePresent(fn func() error) *Future {
	fut := newFuture(nil)
	s.mu.Lock()
	s.present = append(s.present, presentWork{fn, fut})
	s.mu.Unlock()
	return fut
}

// Pending returns the number of batches waiting in each
// queue.
func (s *Scheduler) Pending() (graphics, present int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.graphics), len(s.present)
}

// SubmitAll commits every queued graphics batch, in
// order, and resolves their futures.
// A batch that fails to commit resolves its future with
// the commit error. Remaining batches are still
// committed. The first error is returned.
func (s *Scheduler) SubmitAll() (err error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	s.mu.Lock()
	q := s.graphics
	s.graphics = nil
	s.mu.Unlock()
	for i := range q {
		cerr := s.gpu.Commit(q[i].cb, q[i].fence)
		if cerr != nil {
			cerr = errors.Wrap(cerr, "commit failed")
			s.log.WithError(cerr).Error("batch not submitted")
			if err == nil {
				err = cerr
			}
		}
		q[i].fut.resolve(cerr)
	}
	if len(q) > 0 {
		s.log.WithField("batches", len(q)).Trace("submitted")
	}
	return
}

// PresentAll runs every queued present function, in
// order, and resolves their futures.
// Failures do not stop the queue. The first error is
// returned.
func (s *Scheduler) PresentAll() (err error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	s.mu.Lock()
	q := s.present
	s.present = nil
	s.mu.Unlock()
	for i := range q {
		perr := q[i].fn()
		if perr != nil && err == nil {
			err = perr
		}
		q[i].fut.resolve(perr)
	}
	return
}

// Run enqueues a batch, submits the queue and waits for
// the batch to complete.
func (s *Scheduler) Run(cb []driver.CmdBuffer, fence driver.Fence) error {
	fut := s.Enqueue(cb, fence)
	s.SubmitAll()
	return fut.Complete(s.timeout)
}

// park defers a call to release until fence is signaled.
// If fut resolves with an error, the batch never
// reached the device and release may run as soon as
// reclaim is called.
func (s *Scheduler) park(fence driver.Fence, fut *Future, release func()) {
	s.parkMu.Lock()
	s.parked = append(s.parked, parked{fence, fut, release})
	s.parkMu.Unlock()
}

func (p *parked) ready() bool {
	if p.fut != nil {
		if !p.fut.Resolved() {
			return false
		}
		if p.fut.err != nil {
			return true
		}
	}
	return p.fence.Signaled()
}

// reclaim runs the release function of every parked
// entry whose work is no longer in use by the device.
// It returns the number of entries still parked.
func (s *Scheduler) reclaim() int {
	s.parkMu.Lock()
	var ready []func()
	n := 0
	for _, p := range s.parked {
		if p.ready() {
			ready = append(ready, p.release)
		} else {
			s.parked[n] = p
			n++
		}
	}
	clear(s.parked[n:])
	s.parked = s.parked[:n]
	s.parkMu.Unlock()
	for _, fn := range ready {
		fn()
	}
	return n
}

// drain waits for every parked entry and releases it.
// Entries whose fence does not signal within timeout are
// dropped without release and reported as an error.
func (s *Scheduler) drain(timeout time.Duration) (err error) {
	s.parkMu.Lock()
	ps := s.parked
	s.parked = nil
	s.parkMu.Unlock()
	for _, p := range ps {
		if !p.ready() {
			var werr error
			if p.fut != nil && !p.fut.Resolved() {
				werr = errors.Wrap(ErrDeviceTimeout, "parked work never submitted")
			} else if werr = p.fence.Wait(timeout); errors.Is(werr, driver.ErrTimeout) {
				werr = errors.Wrap(ErrDeviceTimeout, "parked work still running")
			} else {
				werr = nil
			}
			if werr != nil {
				s.log.WithError(werr).Error("leaking device resources")
				err = errors.CombineErrors(err, werr)
				continue
			}
		}
		p.release()
	}
	return
}

// parkedLen returns the number of parked entries.
func (s *Scheduler) parkedLen() int {
	s.parkMu.Lock()
	defer s.parkMu.Unlock()
	return len(s.parked)
}
