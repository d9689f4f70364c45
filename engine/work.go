// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/devres/driver"
)

// work is a single command buffer recorded by the engine,
// plus the temporaries that it uses.
// Hooks run after the device is done with the command
// buffer, in reverse registration order:
//
//   - abort hooks run if the commands never executed
//   - fail hooks run if execution failed
//   - complete hooks run if execution succeeded
//   - release hooks always run, last
type work struct {
	e        *Engine
	cb       driver.CmdBuffer
	fence    driver.Fence
	fut      *Future
	abort    []func()
	fail     []func()
	complete []func()
	release  []func()
	freed    bool
}

func (w *work) onAbort(fn func())    { w.abort = append(w.abort, fn) }
func (w *work) onFail(fn func())     { w.fail = append(w.fail, fn) }
func (w *work) onComplete(fn func()) { w.complete = append(w.complete, fn) }
func (w *work) onRelease(fn func())  { w.release = append(w.release, fn) }

func runHooks(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// newWork creates a work whose command buffer has begun
// recording.
func (e *Engine) newWork() (*work, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	cb, err := e.gpu.NewCmdBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "command buffer creation failed")
	}
	fence, err := e.gpu.NewFence()
	if err != nil {
		cb.Destroy()
		return nil, errors.Wrap(err, "fence creation failed")
	}
	if err = cb.Begin(); err != nil {
		fence.Destroy()
		cb.Destroy()
		return nil, errors.Wrap(err, "command buffer begin failed")
	}
	e.pending.Add(1)
	return &work{e: e, cb: cb, fence: fence}, nil
}

// submit records a new work with rec and enqueues it.
// Recording and enqueuing happen under e.recMu, so the
// order in which layout tags change matches the order in
// which the device executes the transitions.
// If rec fails, the work is discarded and rec's error is
// returned.
func (e *Engine) submit(rec func(w *work) error) (*work, error) {
	w, err := e.newWork()
	if err != nil {
		return nil, err
	}
	e.recMu.Lock()
	if err = rec(w); err == nil {
		if err = w.cb.End(); err != nil {
			err = errors.Wrap(err, "command buffer end failed")
		}
	}
	if err != nil {
		e.recMu.Unlock()
		w.discard()
		return nil, err
	}
	w.fut = e.sched.Enqueue([]driver.CmdBuffer{w.cb}, w.fence)
	e.recMu.Unlock()
	return w, nil
}

// staging checks out a staging buffer of at least n
// bytes for the lifetime of w.
func (w *work) staging(n int64) (driver.Buffer, error) {
	buf, err := w.e.pool.get(n)
	if err != nil {
		return nil, err
	}
	w.onRelease(func() { w.e.pool.put(buf) })
	return buf, nil
}

// wait waits for w to complete and then frees it.
// If the device does not signal within the configured
// timeout, w is parked in the scheduler instead, so its
// temporaries outlive the device's use of them, and an
// error wrapping ErrDeviceTimeout is returned.
func (w *work) wait() error {
	err := w.fut.Complete(w.e.cfg.FenceTimeout)
	switch {
	case err == nil:
		runHooks(w.complete)
	case errors.Is(err, ErrDeviceTimeout):
		w.e.log.WithError(err).Warn("device work timed out")
		w.e.sched.park(w.fence, w.fut, w.free)
		return err
	case w.fut.err != nil:
		runHooks(w.abort)
	default:
		runHooks(w.fail)
	}
	w.free()
	return err
}

// discard frees w without submitting it.
// Layout changes recorded in w are reverted.
func (w *work) discard() {
	runHooks(w.abort)
	if err := w.cb.Reset(); err != nil {
		w.e.log.WithError(err).Warn("command buffer reset failed")
	}
	w.free()
}

func (w *work) free() {
	if w.freed {
		return
	}
	w.freed = true
	runHooks(w.release)
	w.cb.Destroy()
	w.fence.Destroy()
	w.e.pending.Add(-1)
}

// Transfer is a deferred device transfer.
// It is returned by the asynchronous variants of upload
// and download operations.
type Transfer struct {
	w    *work
	once sync.Once
	data []byte
	err  error
}

// Future returns the Future of the transfer's batch.
func (t *Transfer) Future() *Future { return t.w.fut }

// Wait blocks until the transfer completes and returns
// the data read from the device, if any.
// If the batch is still queued, Wait submits the queue
// first.
// Wait can be called any number of times. It returns the
// same values every time.
func (t *Transfer) Wait() ([]byte, error) {
	t.once.Do(func() {
		if !t.w.fut.Resolved() {
			t.w.e.sched.SubmitAll()
		}
		t.err = t.w.wait()
	})
	return t.data, t.err
}

// transfer submits a transfer recorded by rec.
// If commit is true, it also submits the queue and waits
// for completion.
func (e *Engine) transfer(rec func(w *work, t *Transfer) error, commit bool) (*Transfer, error) {
	t := new(Transfer)
	w, err := e.submit(func(w *work) error { return rec(w, t) })
	if err != nil {
		return nil, err
	}
	t.w = w
	if commit {
		_, err = t.Wait()
		return t, err
	}
	return t, nil
}

// retire calls fn once the device is done with every
// batch enqueued so far.
// If no work is outstanding, fn is called immediately.
// Otherwise an empty batch is enqueued and fn is parked
// behind its fence.
func (e *Engine) retire(fn func()) {
	if e.pending.Load() == 0 {
		fn()
		return
	}
	cb, err := e.gpu.NewCmdBuffer()
	if err != nil {
		e.log.WithError(err).Warn("retiring without a marker")
		fn()
		return
	}
	fence, err := e.gpu.NewFence()
	if err != nil {
		cb.Destroy()
		e.log.WithError(err).Warn("retiring without a marker")
		fn()
		return
	}
	if err = cb.Begin(); err == nil {
		err = cb.End()
	}
	if err != nil {
		fence.Destroy()
		cb.Destroy()
		e.log.WithError(err).Warn("retiring without a marker")
		fn()
		return
	}
	e.recMu.Lock()
	fut := e.sched.Enqueue([]driver.CmdBuffer{cb}, fence)
	e.recMu.Unlock()
	e.sched.park(fence, fut, func() {
		fn()
		cb.Destroy()
		fence.Destroy()
	})
}
