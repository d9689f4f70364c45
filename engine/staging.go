// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math/bits"
	"sync"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gviegas/devres/driver"
)

// stagingPool manages host-visible buffers used to copy
// data between the CPU and the GPU.
// Buffers are bucketed by power-of-two size, from min to
// max bytes. Requests larger than max get a dedicated
// buffer that is destroyed when put back.
type stagingPool struct {
	gpu  driver.GPU
	min  int64
	max  int64
	idle int
	log  *log.Entry

	mu     sync.Mutex
	free   map[int64][]driver.Buffer
	out    int
	closed bool
}

func newStagingPool(gpu driver.GPU, minSize, maxSize int64, idle int, logger *log.Entry) *stagingPool {
	minSize = bucketSize(max(minSize, 256))
	return &stagingPool{
		gpu:  gpu,
		min:  minSize,
		max:  bucketSize(max(maxSize, minSize)),
		idle: idle,
		log:  logger.WithField("component", "staging"),
		free: make(map[int64][]driver.Buffer),
	}
}

// bucketSize rounds n up to a power of two.
func bucketSize(n int64) int64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(uint64(n-1))
}

// get returns a buffer with capacity for at least n bytes.
func (p *stagingPool) get(n int64) (driver.Buffer, error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidParam, "staging request of %d bytes", n)
	}
	size := n
	if n <= p.max {
		size = bucketSize(max(n, p.min))
		p.mu.Lock()
		if l := p.free[size]; len(l) > 0 {
			buf := l[len(l)-1]
			l[len(l)-1] = nil
			p.free[size] = l[:len(l)-1]
			p.out++
			p.mu.Unlock()
			return buf, nil
		}
		p.mu.Unlock()
	}
	buf, err := p.gpu.NewBuffer(size, true, driver.UCopySrc|driver.UCopyDst)
	if err != nil {
		return nil, errors.Wrapf(err, "staging buffer of %d bytes", size)
	}
	p.mu.Lock()
	p.out++
	p.mu.Unlock()
	p.log.WithField("bytes", size).Trace("staging buffer created")
	return buf, nil
}

// put returns buf to p.
func (p *stagingPool) put(buf driver.Buffer) {
	size := buf.Cap()
	p.mu.Lock()
	p.out--
	if !p.closed && size <= p.max && size == bucketSize(size) && len(p.free[size]) < p.idle {
		p.free[size] = append(p.free[size], buf)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	buf.Destroy()
}

// idleLen returns the number of idle buffers.
func (p *stagingPool) idleLen() (n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.free {
		n += len(l)
	}
	return
}

// destroy destroys every idle buffer.
// Buffers that are checked out are not affected, but
// put destroys them from then on.
func (p *stagingPool) destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for k, l := range p.free {
		for _, buf := range l {
			buf.Destroy()
		}
		delete(p.free, k)
	}
	if p.out != 0 {
		p.log.WithField("buffers", p.out).Warn("staging buffers still checked out")
	}
}
