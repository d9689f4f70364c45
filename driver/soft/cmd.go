// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/devres/driver"
)

type cmdState int

const (
	cmdInitial cmdState = iota
	cmdRecording
	cmdExecutable
	cmdPending
)

// cmdBuffer implements driver.CmdBuffer.
// Commands are recorded as closures that the queue
// goroutine runs in order.
type cmdBuffer struct {
	g     *GPU
	mu    sync.Mutex
	state cmdState
	ops   []func() error
	dead  bool
}

// NewCmdBuffer creates a new command buffer.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	g.ncb.Add(1)
	return &cmdBuffer{g: g}, nil
}

// Begin prepares c for recording.
func (c *cmdBuffer) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == cmdPending {
		return errors.New("soft: cannot begin a pending command buffer")
	}
	c.ops = c.ops[:0]
	c.state = cmdRecording
	return nil
}

// IsRecording returns whether c is recording.
func (c *cmdBuffer) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == cmdRecording
}

// End ends recording.
func (c *cmdBuffer) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != cmdRecording {
		return errors.New("soft: command buffer not recording")
	}
	c.state = cmdExecutable
	return nil
}

// Reset discards recorded commands.
func (c *cmdBuffer) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == cmdPending {
		return errors.New("soft: cannot reset a pending command buffer")
	}
	c.ops = c.ops[:0]
	c.state = cmdInitial
	return nil
}

// Destroy destroys c.
func (c *cmdBuffer) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return
	}
	if c.state == cmdPending {
		panic("soft: command buffer destroyed while pending")
	}
	c.dead = true
	c.ops = nil
	c.g.ncb.Add(-1)
}

func (c *cmdBuffer) submit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != cmdExecutable || c.dead {
		return false
	}
	c.state = cmdPending
	return true
}

func (c *cmdBuffer) unsubmit() {
	c.mu.Lock()
	c.state = cmdExecutable
	c.mu.Unlock()
}

// retire returns c to the initial state after
// execution.
func (c *cmdBuffer) retire() {
	c.mu.Lock()
	c.ops = c.ops[:0]
	c.state = cmdInitial
	c.mu.Unlock()
}

func (c *cmdBuffer) execute() error {
	c.mu.Lock()
	ops := c.ops
	c.mu.Unlock()
	for _, op := range ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

// record appends op to c.
func (c *cmdBuffer) record(op func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != cmdRecording {
		panic("soft: command recorded outside Begin/End")
	}
	c.ops = append(c.ops, op)
}

func asBuffer(b driver.Buffer) (*buffer, error) {
	if x, ok := b.(*buffer); ok {
		return x, nil
	}
	return nil, errNotSoft
}

func asImage(i driver.Image) (*image, error) {
	if x, ok := i.(*image); ok {
		return x, nil
	}
	return nil, errNotSoft
}

// CopyBuffer copies data between buffers.
func (c *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	p := *param
	c.record(func() error {
		from, err := asBuffer(p.From)
		if err != nil {
			return err
		}
		to, err := asBuffer(p.To)
		if err != nil {
			return err
		}
		src, err := from.span(p.FromOff, p.Size)
		if err != nil {
			return err
		}
		dst, err := to.span(p.ToOff, p.Size)
		if err != nil {
			return err
		}
		copy(dst, src)
		return nil
	})
}

// bufImgCopy performs a copy between a buffer and an
// image. If toImg is set, the buffer is the source.
func bufImgCopy(p *driver.BufImgCopy, toImg bool) error {
	buf, err := asBuffer(p.Buf)
	if err != nil {
		return err
	}
	img, err := asImage(p.Img)
	if err != nil {
		return err
	}
	if err = img.checkRange(p.Layer, p.Layers, p.Level, 1); err != nil {
		return err
	}
	if img.samples != 1 {
		return errors.New("soft: cannot copy between buffer and multisample image")
	}
	lsz := img.levelSize(p.Level)
	switch {
	case p.Size.Width <= 0 || p.Size.Height <= 0 || p.Size.Depth <= 0,
		p.ImgOff.X < 0 || p.ImgOff.Y < 0 || p.ImgOff.Z < 0,
		p.ImgOff.X+p.Size.Width > lsz.Width,
		p.ImgOff.Y+p.Size.Height > lsz.Height,
		p.ImgOff.Z+p.Size.Depth > lsz.Depth:
		return errors.Newf("soft: copy region %v+%v out of bounds (level size %v)", p.ImgOff, p.Size, lsz)
	case p.Stride[0] < p.Size.Width || p.Stride[1] < p.Size.Height:
		return errors.New("soft: copy stride smaller than copy size")
	}
	psz := int64(img.pf.Size())
	row := int64(p.Size.Width) * psz
	slice := int64(p.Stride[0]) * int64(p.Stride[1]) * psz
	layerSize := slice * int64(p.Size.Depth)
	span, err := buf.span(p.BufOff, layerSize*int64(p.Layers-1)+slice*int64(p.Size.Depth-1)+
		int64(p.Stride[0])*psz*int64(p.Size.Height-1)+row)
	if err != nil {
		return err
	}

	img.mu.Lock()
	defer img.mu.Unlock()
	if img.dead {
		return errors.New("soft: image used after Destroy")
	}
	if toImg {
		err = img.checkLayout(p.Layer, p.Layers, p.Level, driver.LCopyDst, driver.LCommon)
	} else {
		err = img.checkLayout(p.Layer, p.Layers, p.Level, driver.LCopySrc, driver.LCommon)
	}
	if err != nil {
		return err
	}
	for l := 0; l < p.Layers; l++ {
		data := img.data[img.sub(p.Layer+l, p.Level)]
		for z := 0; z < p.Size.Depth; z++ {
			for y := 0; y < p.Size.Height; y++ {
				b := int64(l)*layerSize + int64(z)*slice + int64(y*p.Stride[0])*psz
				i := ((int64(p.ImgOff.Z+z)*int64(lsz.Height)+int64(p.ImgOff.Y+y))*int64(lsz.Width) + int64(p.ImgOff.X)) * psz
				if toImg {
					copy(data[i:i+row], span[b:b+row])
				} else {
					copy(span[b:b+row], data[i:i+row])
				}
			}
		}
	}
	return nil
}

// CopyBufToImg copies data from a buffer to an image.
func (c *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	p := *param
	c.record(func() error { return bufImgCopy(&p, true) })
}

// CopyImgToBuf copies data from an image to a buffer.
func (c *cmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	p := *param
	c.record(func() error { return bufImgCopy(&p, false) })
}

// BlitImage copies and resamples an image region.
func (c *cmdBuffer) BlitImage(param *driver.ImageBlit) {
	p := *param
	c.record(func() error { return blit(&p) })
}

// Fill fills a buffer range.
func (c *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	c.record(func() error {
		if off%4 != 0 || size%4 != 0 {
			return errors.New("soft: misaligned fill range")
		}
		b, err := asBuffer(buf)
		if err != nil {
			return err
		}
		s, err := b.span(off, size)
		if err != nil {
			return err
		}
		for i := range s {
			s[i] = value
		}
		return nil
	})
}

// Barrier inserts global barriers.
// Commands already execute in order, so there is
// nothing to do at execution time.
func (c *cmdBuffer) Barrier(b []driver.Barrier) {
	c.record(func() error { return nil })
}

// Transition inserts image layout transitions.
func (c *cmdBuffer) Transition(t []driver.Transition) {
	t = append([]driver.Transition(nil), t...)
	c.record(func() error {
		for _, x := range t {
			if err := transition(&x); err != nil {
				return err
			}
		}
		return nil
	})
}

func transition(t *driver.Transition) error {
	img, err := asImage(t.Img)
	if err != nil {
		return err
	}
	if err = img.checkRange(t.Layer, t.Layers, t.Level, t.Levels); err != nil {
		return err
	}
	switch t.LayoutAfter {
	case driver.LUndefined, driver.LPreinitialized:
		return errors.Newf("soft: cannot transition to layout %v", t.LayoutAfter)
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.dead {
		return errors.New("soft: image used after Destroy")
	}
	if t.LayoutBefore != driver.LUndefined {
		for i := t.Layer; i < t.Layer+t.Layers; i++ {
			for j := t.Level; j < t.Level+t.Levels; j++ {
				if cur := img.layout[img.sub(i, j)]; cur != t.LayoutBefore {
					return errors.Newf("soft: image subresource (layer %d, level %d) in layout %v, transition expects %v",
						i, j, cur, t.LayoutBefore)
				}
			}
		}
	}
	for i := t.Layer; i < t.Layer+t.Layers; i++ {
		for j := t.Level; j < t.Level+t.Levels; j++ {
			img.layout[img.sub(i, j)] = t.LayoutAfter
		}
	}
	return nil
}
