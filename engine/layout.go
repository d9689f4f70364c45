// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/devres/driver"
)

// image is a device image tracked by the engine.
// Every subresource (layer, level) carries a layout tag
// that must match the layout the device considers it to
// be in once all recorded work executes.
type image struct {
	img      driver.Image
	pf       driver.PixelFmt
	width    int
	height   int
	layers   int
	levels   int
	samples  int
	cube     bool
	external bool
	// home is the layout the image is kept in between
	// operations.
	home driver.Layout

	mu      sync.Mutex
	layouts []driver.Layout
	views   []driver.ImageView
	view    driver.ImageView
}

// subrange is a range of image subresources.
type subrange struct {
	layer, layers int
	level, levels int
}

func (img *image) all() subrange { return subrange{0, img.layers, 0, img.levels} }

func (img *image) sub(layer, level int) int { return layer*img.levels + level }

// layout returns the layout tag of a subresource.
func (img *image) layout(layer, level int) driver.Layout {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.layouts[img.sub(layer, level)]
}

// levelSize returns the extent of a given mip level.
func (img *image) levelSize(level int) (width, height int) {
	return max(1, img.width>>level), max(1, img.height>>level)
}

// newImage creates a 2D image whose subresources start
// in the undefined layout.
func (e *Engine) newImage(pf driver.PixelFmt, width, height, layers, levels, samples int, cube bool, usg driver.Usage, home driver.Layout) (*image, error) {
	img, err := e.gpu.NewImage(pf, driver.Dim3D{Width: width, Height: height, Depth: 1}, layers, levels, samples, usg)
	if err != nil {
		return nil, errors.Wrapf(err, "image creation failed (%dx%d, %d layers, %d levels)", width, height, layers, levels)
	}
	return &image{
		img:     img,
		pf:      pf,
		width:   width,
		height:  height,
		layers:  layers,
		levels:  levels,
		samples: samples,
		cube:    cube,
		home:    home,
		layouts: make([]driver.Layout, layers*levels),
	}, nil
}

// viewType returns the type of a view spanning layers.
func (img *image) viewType(layers int) driver.ViewType {
	switch {
	case img.samples > 1 && layers > 1:
		return driver.IView2DMSArray
	case img.samples > 1:
		return driver.IView2DMS
	case img.cube && layers == 6:
		return driver.IViewCube
	case img.cube && layers%6 == 0:
		return driver.IViewCubeArray
	case layers > 1:
		return driver.IView2DArray
	}
	return driver.IView2D
}

// wholeView returns a view of every subresource of img.
// It is created on first use.
func (img *image) wholeView() (driver.ImageView, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.view == nil {
		v, err := img.img.NewView(img.viewType(img.layers), 0, img.layers, 0, img.levels)
		if err != nil {
			return nil, errors.Wrap(err, "image view creation failed")
		}
		img.view = v
	}
	return img.view, nil
}

// layerView returns a 2D view of a single layer of img.
// It is created on first use.
func (img *image) layerView(layer int) (driver.ImageView, error) {
	if layer < 0 || layer >= img.layers {
		return nil, errors.Wrapf(ErrOutOfRange, "layer %d of %d", layer, img.layers)
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.views == nil {
		img.views = make([]driver.ImageView, img.layers)
	}
	if img.views[layer] == nil {
		typ := driver.IView2D
		if img.samples > 1 {
			typ = driver.IView2DMS
		}
		v, err := img.img.NewView(typ, layer, 1, 0, img.levels)
		if err != nil {
			return nil, errors.Wrap(err, "image view creation failed")
		}
		img.views[layer] = v
	}
	return img.views[layer], nil
}

// destroy destroys the views of img and then img itself.
// External images are not destroyed.
func (img *image) destroy() {
	img.mu.Lock()
	defer img.mu.Unlock()
	for _, v := range img.views {
		if v != nil {
			v.Destroy()
		}
	}
	img.views = nil
	if img.view != nil {
		img.view.Destroy()
		img.view = nil
	}
	if !img.external {
		img.img.Destroy()
	}
	img.img = nil
}

// srcScope returns the scope that must complete before
// leaving layout from.
func srcScope(from driver.Layout) (driver.Sync, driver.Access) {
	switch from {
	case driver.LPreinitialized:
		return driver.SHost, driver.AHostWrite
	case driver.LCommon:
		return driver.SAll, driver.AAnyWrite
	case driver.LColorTarget:
		return driver.SColorOutput, driver.AColorWrite
	case driver.LDSTarget:
		return driver.SDSOutput, driver.ADSWrite
	case driver.LCopySrc:
		return driver.SCopy, driver.ACopyRead
	case driver.LCopyDst:
		return driver.SCopy, driver.ACopyWrite
	case driver.LShaderRead:
		return driver.SFragmentShading | driver.SComputeShading, driver.AShaderRead
	}
	return driver.SNone, driver.ANone
}

// dstScope returns the scope that must wait for the
// transition into layout to.
func dstScope(to driver.Layout) (driver.Sync, driver.Access) {
	switch to {
	case driver.LCommon:
		return driver.SAll, driver.AAnyRead | driver.AAnyWrite
	case driver.LColorTarget:
		return driver.SColorOutput, driver.AColorRead | driver.AColorWrite
	case driver.LDSTarget:
		return driver.SDSOutput, driver.ADSRead | driver.ADSWrite
	case driver.LCopySrc:
		return driver.SCopy, driver.ACopyRead
	case driver.LCopyDst:
		return driver.SCopy, driver.ACopyWrite
	case driver.LShaderRead:
		return driver.SFragmentShading | driver.SComputeShading, driver.AShaderRead
	}
	return driver.SNone, driver.ANone
}

// barrier returns the barrier of a from -> to transition.
func barrier(from, to driver.Layout) driver.Barrier {
	sb, ab := srcScope(from)
	sa, aa := dstScope(to)
	if to == driver.LShaderRead && ab == driver.ANone {
		sb |= driver.SHost | driver.SCopy
		ab |= driver.AHostWrite | driver.ACopyWrite
	}
	return driver.Barrier{SyncBefore: sb, SyncAfter: sa, AccessBefore: ab, AccessAfter: aa}
}

// run is a range of layers that share a layout.
type run struct {
	layer, layers int
	from          driver.Layout
}

// transition records transitions that move every
// subresource in sub to layout to, and updates the tags.
// Layers with equal layouts in a level are merged into
// a single directive, as are consecutive levels with
// equal runs.
// If w is discarded, the tags are reverted. If the
// device fails to execute w, the tags are reset to
// undefined.
func (img *image) transition(w *work, sub subrange, to driver.Layout) {
	img.mu.Lock()
	defer img.mu.Unlock()
	prev := img.saveLocked(sub)

	var xs []driver.Transition
	var last []run
	start := 0
	for lv := sub.level; lv < sub.level+sub.levels; lv++ {
		var runs []run
		for l := sub.layer; l < sub.layer+sub.layers; l++ {
			cur := img.layouts[img.sub(l, lv)]
			if n := len(runs); n > 0 && runs[n-1].from == cur {
				runs[n-1].layers++
			} else {
				runs = append(runs, run{l, 1, cur})
			}
		}
		if lv > sub.level && slices.Equal(runs, last) {
			for i := range runs {
				xs[start+i].Levels++
			}
			continue
		}
		start = len(xs)
		last = runs
		for _, r := range runs {
			xs = append(xs, driver.Transition{
				Barrier:      barrier(r.from, to),
				LayoutBefore: r.from,
				LayoutAfter:  to,
				Img:          img.img,
				Layer:        r.layer,
				Layers:       r.layers,
				Level:        lv,
				Levels:       1,
			})
		}
	}
	w.cb.Transition(xs)
	img.setLocked(sub, func(int) driver.Layout { return to })

	w.onAbort(func() { img.restoreTags(sub, prev) })
	w.onFail(func() { img.resetTags(sub) })
}

// saveLocked returns a copy of the tags in sub.
// img.mu must be held.
func (img *image) saveLocked(sub subrange) []driver.Layout {
	s := make([]driver.Layout, 0, sub.layers*sub.levels)
	for l := sub.layer; l < sub.layer+sub.layers; l++ {
		for lv := sub.level; lv < sub.level+sub.levels; lv++ {
			s = append(s, img.layouts[img.sub(l, lv)])
		}
	}
	return s
}

// setLocked sets the tags in sub, in saveLocked order.
// img.mu must be held.
func (img *image) setLocked(sub subrange, fn func(i int) driver.Layout) {
	i := 0
	for l := sub.layer; l < sub.layer+sub.layers; l++ {
		for lv := sub.level; lv < sub.level+sub.levels; lv++ {
			img.layouts[img.sub(l, lv)] = fn(i)
			i++
		}
	}
}

func (img *image) restoreTags(sub subrange, saved []driver.Layout) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.setLocked(sub, func(i int) driver.Layout { return saved[i] })
}

func (img *image) resetTags(sub subrange) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.setLocked(sub, func(int) driver.Layout { return driver.LUndefined })
}

// layoutGuard remembers the layouts of a subrange that
// was temporarily moved to another layout.
type layoutGuard struct {
	img   *image
	sub   subrange
	saved []driver.Layout
}

// acquire transitions sub to layout to and returns a
// guard that can move it back with restore.
func (img *image) acquire(w *work, sub subrange, to driver.Layout) *layoutGuard {
	img.mu.Lock()
	saved := img.saveLocked(sub)
	img.mu.Unlock()
	img.transition(w, sub, to)
	return &layoutGuard{img, sub, saved}
}

// restore records transitions back to the layouts saved
// by acquire. Subresources whose content was undefined
// before acquire are moved to the image's home layout.
func (g *layoutGuard) restore(w *work) {
	type target struct {
		sub subrange
		to  driver.Layout
	}
	var set []target
	i := 0
	for l := g.sub.layer; l < g.sub.layer+g.sub.layers; l++ {
		for lv := g.sub.level; lv < g.sub.level+g.sub.levels; lv++ {
			to := g.saved[i]
			i++
			if to == driver.LUndefined || to == driver.LPreinitialized {
				to = g.img.home
			}
			// Group whole layers that return to one layout.
			if n := len(set); n > 0 && set[n-1].to == to && set[n-1].sub.layer == l &&
				set[n-1].sub.level+set[n-1].sub.levels == lv {
				set[n-1].sub.levels++
				continue
			}
			set = append(set, target{subrange{l, 1, lv, 1}, to})
		}
	}
	for _, s := range set {
		if g.img.layout(s.sub.layer, s.sub.level) != s.to {
			g.img.transition(w, s.sub, s.to)
		}
	}
}
