// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/devres/driver"
)

// image implements driver.Image.
type image struct {
	g       *GPU
	pf      driver.PixelFmt
	size    driver.Dim3D
	layers  int
	levels  int
	samples int
	usg     driver.Usage

	nview atomic.Int64

	mu     sync.Mutex
	dead   bool
	data   [][]byte
	layout []driver.Layout
}

// NewImage creates a new image.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	var reason string
	switch {
	case pf.Size() == 0:
		reason = "unsupported pixel format"
	case size.Width <= 0 || size.Height <= 0 || size.Depth <= 0:
		reason = "invalid image size"
	case size.Depth > 1 && layers > 1:
		reason = "3D image cannot have layers"
	case size.Width > g.limits.MaxImage2D || size.Height > g.limits.MaxImage2D:
		reason = "image size exceeds limit"
	case layers <= 0 || layers > g.limits.MaxLayers:
		reason = "invalid layer count"
	case levels <= 0 || levels > maxLevels(size):
		reason = "invalid level count"
	case samples != 1 && samples != 2 && samples != 4 && samples != 8:
		reason = "invalid sample count"
	case samples > 1 && (levels != 1 || usg&driver.URenderTarget == 0):
		reason = "multisample image must be a single-level render target"
	case pf.IsDS() && usg&(driver.URenderTarget|driver.UShaderSample|driver.UCopySrc|driver.UCopyDst) == 0:
		reason = "depth/stencil image has no usable usage"
	default:
		goto validParam
	}
	return nil, errors.New("soft: " + reason)

validParam:
	if g.allocFails() {
		return nil, driver.ErrNoDeviceMemory
	}
	img := &image{
		g:       g,
		pf:      pf,
		size:    size,
		layers:  layers,
		levels:  levels,
		samples: samples,
		usg:     usg,
		data:    make([][]byte, layers*levels),
		layout:  make([]driver.Layout, layers*levels),
	}
	for i := 0; i < layers; i++ {
		for j := 0; j < levels; j++ {
			d := img.levelSize(j)
			img.data[i*levels+j] = make([]byte, d.Width*d.Height*d.Depth*pf.Size())
		}
	}
	g.nimg.Add(1)
	return img, nil
}

// maxLevels returns the length of a full mip chain.
func maxLevels(size driver.Dim3D) int {
	n := max(size.Width, size.Height, size.Depth)
	levels := 1
	for n > 1 {
		n >>= 1
		levels++
	}
	return levels
}

// levelSize returns the size of a given mip level.
func (img *image) levelSize(level int) driver.Dim3D {
	return driver.Dim3D{
		Width:  max(1, img.size.Width>>level),
		Height: max(1, img.size.Height>>level),
		Depth:  max(1, img.size.Depth>>level),
	}
}

// sub returns the index of a subresource.
func (img *image) sub(layer, level int) int { return layer*img.levels + level }

// checkRange validates a subresource range.
func (img *image) checkRange(layer, layers, level, levels int) error {
	if layer < 0 || layers <= 0 || layer+layers > img.layers ||
		level < 0 || levels <= 0 || level+levels > img.levels {
		return errors.Newf("soft: subresource range (layer %d+%d, level %d+%d) out of bounds", layer, layers, level, levels)
	}
	return nil
}

// checkLayout checks that every subresource in the
// range is in one of the given layouts.
// img.mu must be held.
func (img *image) checkLayout(layer, layers, level int, valid ...driver.Layout) error {
	for i := layer; i < layer+layers; i++ {
		cur := img.layout[img.sub(i, level)]
		ok := false
		for _, l := range valid {
			if cur == l {
				ok = true
				break
			}
		}
		if !ok {
			return errors.Newf("soft: image subresource (layer %d, level %d) in layout %v, need one of %v", i, level, cur, valid)
		}
	}
	return nil
}

// NewView creates a new image view.
func (img *image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if err := img.checkRange(layer, layers, level, levels); err != nil {
		return nil, err
	}
	var reason string
	switch typ {
	case driver.IView2D:
		if layers != 1 || img.size.Depth != 1 || img.samples != 1 {
			reason = "2D view requires a single layer of a single-sample 2D image"
		}
	case driver.IView2DArray:
		if img.size.Depth != 1 || img.samples != 1 {
			reason = "2D array view requires a single-sample 2D image"
		}
	case driver.IView3D:
		if img.size.Depth == 1 {
			reason = "3D view requires a 3D image"
		}
	case driver.IViewCube:
		if layers != 6 || img.size.Width != img.size.Height {
			reason = "cube view requires six square layers"
		}
	case driver.IViewCubeArray:
		if layers%6 != 0 || img.size.Width != img.size.Height {
			reason = "cube array view requires multiples of six square layers"
		}
	case driver.IView2DMS:
		if layers != 1 || img.samples == 1 {
			reason = "2D MS view requires a single layer of a multisample image"
		}
	case driver.IView2DMSArray:
		if img.samples == 1 {
			reason = "2D MS array view requires a multisample image"
		}
	default:
		reason = "unknown view type"
	}
	if reason != "" {
		return nil, errors.New("soft: " + reason)
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.dead {
		return nil, errors.New("soft: image used after Destroy")
	}
	img.nview.Add(1)
	img.g.nview.Add(1)
	return &view{img: img, typ: typ, layer: layer, layers: layers, level: level, levels: levels}, nil
}

// Destroy destroys img.
// It panics if views created from img are still alive.
func (img *image) Destroy() {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.dead {
		return
	}
	if img.nview.Load() != 0 {
		panic("soft: image destroyed before its views")
	}
	img.dead = true
	img.data = nil
	img.g.nimg.Add(-1)
}

// view implements driver.ImageView.
type view struct {
	img    *image
	typ    driver.ViewType
	layer  int
	layers int
	level  int
	levels int
	dead   atomic.Bool
}

// Image returns the image from which v was created.
func (v *view) Image() driver.Image { return v.img }

// Destroy destroys v.
func (v *view) Destroy() {
	if v.dead.CompareAndSwap(false, true) {
		v.img.nview.Add(-1)
		v.img.g.nview.Add(-1)
	}
}

// Layout returns the layout in which the device considers
// a given image subresource to be.
// It is intended for tests.
func Layout(img driver.Image, layer, level int) driver.Layout {
	i := img.(*image)
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.layout[i.sub(layer, level)]
}

// Pixels returns a copy of the data of a given image
// subresource, tightly packed.
// It is intended for tests.
func Pixels(img driver.Image, layer, level int) []byte {
	i := img.(*image)
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]byte(nil), i.data[i.sub(layer, level)]...)
}
