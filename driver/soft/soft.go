// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package soft implements driver interfaces on the CPU.
// Memory lives in Go slices and committed command buffers
// execute in order on a dedicated queue goroutine.
// Commands are checked the way a validation layer would:
// image subresources must be in a layout that permits
// each access, and transitions must name the correct
// prior layout.
//
// The driver registers itself under the name "soft".
package soft

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gviegas/devres/driver"
)

const driverName = "soft"

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		d.gpu = newGPU(d)
		log.WithField("driver", driverName).Debug("device opened")
	}
	return d.gpu, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
// Work that was already committed runs to completion
// before Close returns. The GPU must not be paused.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu != nil {
		d.gpu.stop()
		d.gpu = nil
		log.WithField("driver", driverName).Debug("device closed")
	}
}

// GPU implements driver.GPU.
type GPU struct {
	drv    *Driver
	limits driver.Limits

	// run is held by the queue goroutine while it
	// executes a batch, and by Pause.
	run sync.Mutex

	mu    sync.Mutex
	cond  *sync.Cond
	queue []*submission
	done  bool
	wg    sync.WaitGroup

	// failAlloc counts down to an injected allocation
	// failure. Zero disables injection.
	failAlloc atomic.Int64

	nbuf   atomic.Int64
	nimg   atomic.Int64
	nview  atomic.Int64
	ncb    atomic.Int64
	nfence atomic.Int64
}

type submission struct {
	cb    []*cmdBuffer
	fence *fence
}

func newGPU(d *Driver) *GPU {
	g := &GPU{
		drv: d,
		limits: driver.Limits{
			MaxImage2D:   16384,
			MaxImageCube: 16384,
			MaxImage3D:   2048,
			MaxLayers:    2048,
			MaxSamples:   8,
			MaxBuffer:    1 << 31,
		},
	}
	g.cond = sync.NewCond(&g.mu)
	g.wg.Add(1)
	go g.work()
	return g
}

// work executes committed batches in order.
func (g *GPU) work() {
	defer g.wg.Done()
	for {
		g.mu.Lock()
		for len(g.queue) == 0 && !g.done {
			g.cond.Wait()
		}
		if len(g.queue) == 0 {
			g.mu.Unlock()
			return
		}
		s := g.queue[0]
		g.queue[0] = nil
		g.queue = g.queue[1:]
		g.mu.Unlock()

		g.run.Lock()
		err := s.execute()
		g.run.Unlock()
		s.fence.signal(err)
	}
}

// execute runs every command of s. It stops at the
// first failing command.
func (s *submission) execute() (err error) {
	for _, cb := range s.cb {
		if err == nil {
			err = cb.execute()
		}
		cb.retire()
	}
	return
}

func (g *GPU) stop() {
	g.mu.Lock()
	g.done = true
	g.cond.Broadcast()
	g.mu.Unlock()
	g.wg.Wait()
}

// Driver returns the Driver that owns g.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits { return g.limits }

var (
	errNotSoft     = errors.New("soft: resource created by another driver")
	errNotEnded    = errors.New("soft: command buffer not ended")
	errFenceInUse  = errors.New("soft: fence is pending or signaled")
	errEmptyCommit = errors.New("soft: no command buffers to commit")
)

// Commit commits a batch of command buffers for execution.
func (g *GPU) Commit(cb []driver.CmdBuffer, fc driver.Fence) error {
	if len(cb) == 0 {
		return errEmptyCommit
	}
	f, ok := fc.(*fence)
	if !ok || f.g != g {
		return errNotSoft
	}
	s := &submission{cb: make([]*cmdBuffer, len(cb)), fence: f}
	for i := range cb {
		c, ok := cb[i].(*cmdBuffer)
		if !ok || c.g != g {
			return errNotSoft
		}
		s.cb[i] = c
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return driver.ErrFatal
	}
	if !f.arm() {
		return errFenceInUse
	}
	for i, c := range s.cb {
		if !c.submit() {
			for _, c := range s.cb[:i] {
				c.unsubmit()
			}
			f.disarm()
			return errNotEnded
		}
	}
	g.queue = append(g.queue, s)
	g.cond.Signal()
	return nil
}

// Pause stops the queue from starting new batches until
// Resume is called. It blocks until the batch currently
// executing, if any, completes.
// Commits made while paused are queued normally.
func (g *GPU) Pause() { g.run.Lock() }

// Resume undoes a previous call to Pause.
func (g *GPU) Resume() { g.run.Unlock() }

// FailAlloc causes the n-th subsequent buffer or image
// allocation to fail with driver.ErrNoDeviceMemory.
// FailAlloc(0) disables injection.
func (g *GPU) FailAlloc(n int) { g.failAlloc.Store(int64(n)) }

// allocFails consumes one step of injected failure.
func (g *GPU) allocFails() bool {
	for {
		n := g.failAlloc.Load()
		if n <= 0 {
			return false
		}
		if g.failAlloc.CompareAndSwap(n, n-1) {
			return n == 1
		}
	}
}

// Stats reports the number of live objects.
type Stats struct {
	Buffers    int
	Images     int
	Views      int
	CmdBuffers int
	Fences     int
}

// Stats returns the number of objects created from g
// that have not been destroyed yet.
func (g *GPU) Stats() Stats {
	return Stats{
		Buffers:    int(g.nbuf.Load()),
		Images:     int(g.nimg.Load()),
		Views:      int(g.nview.Load()),
		CmdBuffers: int(g.ncb.Load()),
		Fences:     int(g.nfence.Load()),
	}
}
