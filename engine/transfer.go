// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/cockroachdb/errors"

	"github.com/gviegas/devres/driver"
)

// writeBuffer records a copy of data into dst at off,
// through a staging buffer.
func (w *work) writeBuffer(dst driver.Buffer, off int64, data []byte) error {
	n := int64(len(data))
	stg, err := w.staging(n)
	if err != nil {
		return err
	}
	copy(stg.Bytes(), data)
	w.cb.CopyBuffer(&driver.BufferCopy{From: stg, To: dst, ToOff: off, Size: n})
	return nil
}

// readBuffer records a copy of n bytes of src, starting
// at off, into a staging buffer. The bytes are stored in
// t when w completes.
func (w *work) readBuffer(t *Transfer, src driver.Buffer, off, n int64) error {
	stg, err := w.staging(n)
	if err != nil {
		return err
	}
	w.cb.CopyBuffer(&driver.BufferCopy{From: src, FromOff: off, To: stg, Size: n})
	w.onComplete(func() { t.data = append([]byte(nil), stg.Bytes()[:n]...) })
	return nil
}

// uploadBuffer copies size bytes of data into dst at
// off.
// data must hold at least size bytes. Extra bytes are
// ignored.
func (e *Engine) uploadBuffer(dst driver.Buffer, off, size int64, data []byte, commit bool) (*Transfer, error) {
	switch {
	case int64(len(data)) < size:
		return nil, errors.Wrapf(ErrSizeMismatch, "have %d bytes, need %d", len(data), size)
	case off < 0 || size <= 0 || off+size > dst.Cap():
		return nil, errors.Wrapf(ErrOutOfRange, "buffer range [%d, %d) of %d bytes", off, off+size, dst.Cap())
	}
	data = data[:size]
	return e.transfer(func(w *work, _ *Transfer) error { return w.writeBuffer(dst, off, data) }, commit)
}

// downloadBuffer reads n bytes of src starting at off.
func (e *Engine) downloadBuffer(src driver.Buffer, off, n int64, commit bool) (*Transfer, error) {
	if off < 0 || n <= 0 || off+n > src.Cap() {
		return nil, errors.Wrapf(ErrOutOfRange, "buffer range [%d, %d) of %d bytes", off, off+n, src.Cap())
	}
	return e.transfer(func(w *work, t *Transfer) error { return w.readBuffer(t, src, off, n) }, commit)
}

// Region identifies a rectangle of a single image
// subresource.
// A zero Width or Height selects the whole extent of
// the level, starting at X, Y.
type Region struct {
	Layer  int
	Level  int
	X, Y   int
	Width  int
	Height int
	// Depth selects the depth/stencil image of an
	// attachment rather than its color image.
	Depth bool
}

// resolve validates r against img and fills in a zero
// extent.
func (r Region) resolve(img *image) (Region, error) {
	if r.Layer < 0 || r.Layer >= img.layers || r.Level < 0 || r.Level >= img.levels {
		return r, errors.Wrapf(ErrOutOfRange, "layer %d, level %d (image has %d, %d)", r.Layer, r.Level, img.layers, img.levels)
	}
	w, h := img.levelSize(r.Level)
	if r.Width == 0 {
		r.Width = w - r.X
	}
	if r.Height == 0 {
		r.Height = h - r.Y
	}
	if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 || r.X+r.Width > w || r.Y+r.Height > h {
		return r, errors.Wrapf(ErrOutOfRange, "region (%d, %d)+(%d, %d) of level size (%d, %d)", r.X, r.Y, r.Width, r.Height, w, h)
	}
	return r, nil
}

func (r Region) size(pf driver.PixelFmt) int64 {
	return int64(r.Width) * int64(r.Height) * int64(pf.Size())
}

func (r Region) copyParam(buf driver.Buffer, img *image) *driver.BufImgCopy {
	return &driver.BufImgCopy{
		Buf:    buf,
		Stride: [2]int{r.Width, r.Height},
		Img:    img.img,
		ImgOff: driver.Off3D{X: r.X, Y: r.Y},
		Layer:  r.Layer,
		Level:  r.Level,
		Size:   driver.Dim3D{Width: r.Width, Height: r.Height, Depth: 1},
		Layers: 1,
	}
}

// writeImage records a copy of data into a resolved
// region of img. The region is restored to its previous
// layout afterwards.
func (w *work) writeImage(img *image, r Region, data []byte) error {
	stg, err := w.staging(r.size(img.pf))
	if err != nil {
		return err
	}
	copy(stg.Bytes(), data)
	g := img.acquire(w, subrange{r.Layer, 1, r.Level, 1}, driver.LCopyDst)
	w.cb.CopyBufToImg(r.copyParam(stg, img))
	g.restore(w)
	return nil
}

// readImage records a copy of a resolved region of img
// into a staging buffer. The bytes are stored in t when
// w completes.
func (w *work) readImage(t *Transfer, img *image, r Region) error {
	n := r.size(img.pf)
	stg, err := w.staging(n)
	if err != nil {
		return err
	}
	g := img.acquire(w, subrange{r.Layer, 1, r.Level, 1}, driver.LCopySrc)
	w.cb.CopyImgToBuf(r.copyParam(stg, img))
	g.restore(w)
	w.onComplete(func() { t.data = append([]byte(nil), stg.Bytes()[:n]...) })
	return nil
}

// Resample describes a conversion applied when reading
// image data back.
type Resample struct {
	Width  int
	Height int
	Format driver.PixelFmt
	Filter driver.Filter
}

// blitTemp records a blit of a resolved region of img
// into a new temporary image with the given extent and
// format. The temporary image is left in LCopySrc and is
// destroyed when w is released.
func (w *work) blitTemp(img *image, r Region, width, height int, pf driver.PixelFmt, filter driver.Filter) (*image, error) {
	if img.samples != 1 || img.pf.IsDS() || pf.IsDS() {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "cannot resample format %d (%d samples)", img.pf, img.samples)
	}
	tmp, err := w.e.newImage(pf, width, height, 1, 1, 1, false, driver.UCopySrc|driver.UCopyDst, driver.LCopySrc)
	if err != nil {
		return nil, err
	}
	w.onRelease(tmp.destroy)
	tmp.transition(w, tmp.all(), driver.LCopyDst)
	g := img.acquire(w, subrange{r.Layer, 1, r.Level, 1}, driver.LCopySrc)
	w.cb.BlitImage(&driver.ImageBlit{
		From:      img.img,
		FromLayer: r.Layer,
		FromLevel: r.Level,
		FromOff:   driver.Off3D{X: r.X, Y: r.Y},
		FromSize:  driver.Dim3D{Width: r.Width, Height: r.Height, Depth: 1},
		To:        tmp.img,
		ToSize:    driver.Dim3D{Width: width, Height: height, Depth: 1},
		Filter:    filter,
	})
	g.restore(w)
	tmp.transition(w, tmp.all(), driver.LCopySrc)
	return tmp, nil
}

// downloadImage reads a region of img back, optionally
// resampling it.
func (e *Engine) downloadImage(img *image, r Region, rs *Resample, commit bool) (*Transfer, error) {
	r, err := r.resolve(img)
	if err != nil {
		return nil, err
	}
	if rs == nil || (rs.Width == r.Width && rs.Height == r.Height && rs.Format == img.pf) {
		return e.transfer(func(w *work, t *Transfer) error { return w.readImage(t, img, r) }, commit)
	}
	if rs.Width <= 0 || rs.Height <= 0 || rs.Format.Size() == 0 {
		return nil, errors.Wrapf(ErrInvalidParam, "resample to %dx%d, format %d", rs.Width, rs.Height, rs.Format)
	}
	return e.transfer(func(w *work, t *Transfer) error {
		tmp, err := w.blitTemp(img, r, rs.Width, rs.Height, rs.Format, rs.Filter)
		if err != nil {
			return err
		}
		return w.readImage(t, tmp, Region{Width: rs.Width, Height: rs.Height})
	}, commit)
}

// uploadImage writes data into a region of img.
func (e *Engine) uploadImage(img *image, r Region, data []byte, commit bool) (*Transfer, error) {
	r, err := r.resolve(img)
	if err != nil {
		return nil, err
	}
	if img.samples != 1 {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "cannot upload to a multisample image")
	}
	n := r.size(img.pf)
	if int64(len(data)) < n {
		return nil, errors.Wrapf(ErrSizeMismatch, "have %d bytes, need %d", len(data), n)
	}
	data = data[:n]
	return e.transfer(func(w *work, _ *Transfer) error { return w.writeImage(img, r, data) }, commit)
}
