// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/gviegas/devres/driver"
	"github.com/gviegas/devres/engine/internal/ctxt"
)

const texPrefix = "texture: "

// TextureKind identifies how a texture was created.
type TextureKind int32

// Texture kinds.
const (
	// Sampled 2D texture created from pixel data.
	Tex2D TextureKind = iota
	// Render target with color and/or depth images.
	TexAttachment
	// Render target whose layers form cube faces.
	TexCube
	// Image owned by the caller.
	TexExternal
	// Texture computed in shaders. It has no image.
	TexProcedural
)

// Samplers.
const (
	SamplerLinear = iota
	SamplerNearest
	maxSampler
)

// Texture is a named image resource.
// A Texture is obtained from one of the Engine's
// factories and stays valid until deleted.
type Texture struct {
	e        *Engine
	id       int
	name     string
	kind     TextureKind
	editable bool

	mu      sync.RWMutex
	deleted bool
	color   *image
	depth   *image
	// Attachment parameters, for Resize.
	attach AttachParam

	sampler int32
	scale   float32
	color1  mgl32.Vec4
	color2  mgl32.Vec4
}

// TexParam describes a sampled 2D texture.
type TexParam struct {
	driver.PixelFmt
	Width  int
	Height int
	// Layers defaults to 1.
	Layers int
	// Levels defaults to 1. Levels past the first are
	// generated from the first by linear filtering.
	Levels int
	// Editable textures accept Upload calls.
	Editable bool
}

// AttachParam describes a render target.
type AttachParam struct {
	Width  int
	Height int
	// Layers defaults to 1 (6 for cubes).
	Layers int
	// Samples defaults to 1.
	Samples int

	Color    bool
	ColorFmt driver.PixelFmt
	Depth    bool
	// DepthFmt defaults to driver.D32f.
	DepthFmt driver.PixelFmt

	// Editable attachments accept Upload calls.
	Editable bool
}

// ExternalParam describes an image owned by the caller.
type ExternalParam struct {
	Image driver.Image
	driver.PixelFmt
	Width   int
	Height  int
	Layers  int
	Levels  int
	Samples int
	// Layout is the layout that every subresource of
	// Image is in. It also becomes the layout in which
	// the engine leaves the image after using it.
	Layout driver.Layout
}

// ComputeLevels returns the number of levels in a full
// mip chain of the given extent.
func ComputeLevels(width, height int) int {
	n := max(width, height)
	levels := 1
	for n > 1 {
		n >>= 1
		levels++
	}
	return levels
}

// CreateTexture creates a sampled 2D texture from pixel
// data.
// data must contain the first level of every layer,
// tightly packed, in layer order. The texture ends in
// driver.LShaderRead.
func (e *Engine) CreateTexture(name string, param *TexParam, data []byte) (*Texture, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	limits := ctxt.Limits()
	var reason string
	var p TexParam
	if param == nil {
		reason = "nil param"
		goto invalidParam
	}
	p = *param
	p.Layers = max(p.Layers, 1)
	p.Levels = max(p.Levels, 1)
	switch {
	case p.PixelFmt.IsDS():
		return nil, errors.Wrapf(ErrUnsupportedFormat, texPrefix+"depth/stencil format %d", p.PixelFmt)
	case p.PixelFmt.Size() == 0:
		return nil, errors.Wrapf(ErrUnsupportedFormat, texPrefix+"unknown format %d", p.PixelFmt)
	case p.Width < 1, p.Height < 1:
		reason = "invalid size"
	case p.Width > limits.MaxImage2D, p.Height > limits.MaxImage2D:
		reason = "size too big"
	case p.Layers > limits.MaxLayers:
		reason = "too many layers"
	case p.Levels > ComputeLevels(p.Width, p.Height):
		reason = "invalid level count"
	default:
		goto validParam
	}
invalidParam:
	return nil, errors.Wrap(ErrInvalidParam, texPrefix+reason)

validParam:
	n := int64(p.Width) * int64(p.Height) * int64(p.Layers) * int64(p.Size())
	if int64(len(data)) < n {
		return nil, errors.Wrapf(ErrSizeMismatch, texPrefix+"have %d bytes, need %d", len(data), n)
	}
	data = data[:n]
	return e.textures.create(name, false, func(id int) (*Texture, error) {
		img, err := e.newImage(p.PixelFmt, p.Width, p.Height, p.Layers, p.Levels, 1, false,
			driver.UShaderSample|driver.UCopySrc|driver.UCopyDst, driver.LShaderRead)
		if err != nil {
			return nil, err
		}
		_, err = e.transfer(func(w *work, _ *Transfer) error {
			return w.fillImage(img, data)
		}, true)
		if err != nil {
			e.retire(img.destroy)
			return nil, err
		}
		return &Texture{e: e, id: id, name: name, kind: Tex2D, editable: p.Editable, color: img, scale: 1}, nil
	})
}

// fillImage records a copy of data into the first level
// of every layer of img, generates the remaining levels
// and moves img to its home layout.
func (w *work) fillImage(img *image, data []byte) error {
	stg, err := w.staging(int64(len(data)))
	if err != nil {
		return err
	}
	copy(stg.Bytes(), data)
	img.transition(w, img.all(), driver.LCopyDst)
	w.cb.CopyBufToImg(&driver.BufImgCopy{
		Buf:    stg,
		Stride: [2]int{img.width, img.height},
		Img:    img.img,
		Size:   driver.Dim3D{Width: img.width, Height: img.height, Depth: 1},
		Layers: img.layers,
	})
	for lv := 1; lv < img.levels; lv++ {
		img.transition(w, subrange{0, img.layers, lv - 1, 1}, driver.LCopySrc)
		fw, fh := img.levelSize(lv - 1)
		tw, th := img.levelSize(lv)
		for l := 0; l < img.layers; l++ {
			w.cb.BlitImage(&driver.ImageBlit{
				From:      img.img,
				FromLayer: l,
				FromLevel: lv - 1,
				FromSize:  driver.Dim3D{Width: fw, Height: fh, Depth: 1},
				To:        img.img,
				ToLayer:   l,
				ToLevel:   lv,
				ToSize:    driver.Dim3D{Width: tw, Height: th, Depth: 1},
				Filter:    driver.FLinear,
			})
		}
	}
	img.transition(w, img.all(), img.home)
	return nil
}

// validate checks p and fills in defaults.
func (p *AttachParam) validate(limits driver.Limits, cube bool) error {
	if cube && p.Height == 0 {
		p.Height = p.Width
	}
	if p.Layers == 0 {
		if p.Layers = 1; cube {
			p.Layers = 6
		}
	}
	p.Samples = max(p.Samples, 1)
	if p.Depth && p.DepthFmt == 0 {
		p.DepthFmt = driver.D32f
	}
	maxSize := limits.MaxImage2D
	if cube {
		maxSize = limits.MaxImageCube
	}
	var reason string
	switch {
	case !p.Color && !p.Depth:
		reason = "neither color nor depth requested"
	case p.Color && (p.ColorFmt.IsDS() || p.ColorFmt.Size() == 0):
		return errors.Wrapf(ErrUnsupportedFormat, texPrefix+"color format %d", p.ColorFmt)
	case p.Depth && !p.DepthFmt.IsDS():
		return errors.Wrapf(ErrUnsupportedFormat, texPrefix+"depth format %d", p.DepthFmt)
	case p.Width < 1, p.Height < 1:
		reason = "invalid size"
	case p.Width > maxSize, p.Height > maxSize:
		reason = "size too big"
	case cube && p.Width != p.Height:
		reason = "cube's width and height differs"
	case cube && p.Layers%6 != 0:
		reason = "cube's layer count not a multiple of 6"
	case p.Layers < 1, p.Layers > limits.MaxLayers:
		reason = "invalid layer count"
	case p.Samples&(p.Samples-1) != 0, p.Samples > limits.MaxSamples:
		reason = "invalid sample count"
	case cube && p.Samples != 1:
		reason = "multi-sample cube"
	default:
		return nil
	}
	return errors.Wrap(ErrInvalidParam, texPrefix+reason)
}

// newAttachImages creates the images of an attachment
// and records their transitions to their home layouts.
func (e *Engine) newAttachImages(p *AttachParam, cube bool) (color, depth *image, err error) {
	usg := driver.URenderTarget | driver.UShaderSample
	if p.Samples == 1 {
		usg |= driver.UCopySrc | driver.UCopyDst
	}
	if p.Color {
		if color, err = e.newImage(p.ColorFmt, p.Width, p.Height, p.Layers, 1, p.Samples, cube, usg, driver.LColorTarget); err != nil {
			return
		}
	}
	if p.Depth {
		if depth, err = e.newImage(p.DepthFmt, p.Width, p.Height, p.Layers, 1, p.Samples, cube, usg, driver.LDSTarget); err != nil {
			if color != nil {
				color.destroy()
			}
			return nil, nil, err
		}
	}
	_, err = e.transfer(func(w *work, _ *Transfer) error {
		for _, img := range [2]*image{color, depth} {
			if img != nil {
				img.transition(w, img.all(), img.home)
			}
		}
		return nil
	}, true)
	if err != nil {
		e.retire(func() {
			if color != nil {
				color.destroy()
			}
			if depth != nil {
				depth.destroy()
			}
		})
		return nil, nil, err
	}
	return
}

func (e *Engine) createAttachment(name string, param *AttachParam, cube bool) (*Texture, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if param == nil {
		return nil, errors.Wrap(ErrInvalidParam, texPrefix+"nil param")
	}
	p := *param
	if err := p.validate(ctxt.Limits(), cube); err != nil {
		return nil, err
	}
	kind := TexAttachment
	if cube {
		kind = TexCube
	}
	return e.textures.create(name, false, func(id int) (*Texture, error) {
		color, depth, err := e.newAttachImages(&p, cube)
		if err != nil {
			return nil, err
		}
		return &Texture{
			e:        e,
			id:       id,
			name:     name,
			kind:     kind,
			editable: p.Editable,
			color:    color,
			depth:    depth,
			attach:   p,
			scale:    1,
		}, nil
	})
}

// CreateAttachment creates a render target with optional
// color and depth images. The color image ends in
// driver.LColorTarget and the depth image in
// driver.LDSTarget.
func (e *Engine) CreateAttachment(name string, param *AttachParam) (*Texture, error) {
	return e.createAttachment(name, param, false)
}

// CreateCube creates a render target whose layers form
// one or more cubes. param.Height can be left unset.
func (e *Engine) CreateCube(name string, param *AttachParam) (*Texture, error) {
	return e.createAttachment(name, param, true)
}

// CreateExternal creates a texture from an image that
// the caller owns. The image is never destroyed by the
// engine, but views that the engine creates from it are.
// External textures cannot be uploaded to.
func (e *Engine) CreateExternal(name string, param *ExternalParam) (*Texture, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	var reason string
	var p ExternalParam
	if param == nil {
		reason = "nil param"
		goto invalidParam
	}
	p = *param
	p.Layers = max(p.Layers, 1)
	p.Levels = max(p.Levels, 1)
	p.Samples = max(p.Samples, 1)
	switch {
	case p.Image == nil:
		reason = "nil image"
	case p.PixelFmt.Size() == 0:
		return nil, errors.Wrapf(ErrUnsupportedFormat, texPrefix+"unknown format %d", p.PixelFmt)
	case p.Width < 1, p.Height < 1:
		reason = "invalid size"
	case p.Levels > ComputeLevels(p.Width, p.Height):
		reason = "invalid level count"
	default:
		goto validParam
	}
invalidParam:
	return nil, errors.Wrap(ErrInvalidParam, texPrefix+reason)

validParam:
	return e.textures.create(name, true, func(id int) (*Texture, error) {
		home := p.Layout
		switch home {
		case driver.LUndefined, driver.LPreinitialized:
			if home = driver.LShaderRead; p.PixelFmt.IsDS() {
				home = driver.LDSTarget
			}
		}
		img := &image{
			img:      p.Image,
			pf:       p.PixelFmt,
			width:    p.Width,
			height:   p.Height,
			layers:   p.Layers,
			levels:   p.Levels,
			samples:  p.Samples,
			external: true,
			home:     home,
			layouts:  make([]driver.Layout, p.Layers*p.Levels),
		}
		for i := range img.layouts {
			img.layouts[i] = p.Layout
		}
		t := &Texture{e: e, id: id, name: name, kind: TexExternal, scale: 1}
		if p.PixelFmt.IsDS() {
			t.depth = img
		} else {
			t.color = img
		}
		return t, nil
	})
}

// CreateProcedural creates a texture that has no image.
// Its record describes a two-color pattern that shaders
// compute.
func (e *Engine) CreateProcedural(name string) (*Texture, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.textures.create(name, false, func(id int) (*Texture, error) {
		return &Texture{
			e:      e,
			id:     id,
			name:   name,
			kind:   TexProcedural,
			scale:  0.1,
			color1: mgl32.Vec4{1, 1, 1, 1},
			color2: mgl32.Vec4{0, 0, 0, 1},
		}, nil
	})
}

// Texture returns the texture identified by name.
func (e *Engine) Texture(name string) (*Texture, error) { return e.textures.get(name) }

// TextureByID returns the texture identified by id.
func (e *Engine) TextureByID(id int) (*Texture, error) { return e.textures.getID(id) }

// DeleteTexture deletes the texture identified by name.
// It does nothing if no such texture exists.
func (e *Engine) DeleteTexture(name string) error { return e.textures.delete(name) }

// DeleteTextureByID deletes the texture identified by
// id. It does nothing if no such texture exists.
func (e *Engine) DeleteTextureByID(id int) error { return e.textures.deleteID(id) }

// TextureCount returns the number of live textures.
func (e *Engine) TextureCount() int { return e.textures.len() }

// release implements resource.
func (t *Texture) release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleted = true
	color, depth := t.color, t.depth
	t.color, t.depth = nil, nil
	if color == nil && depth == nil {
		return nil
	}
	t.e.retire(func() {
		if color != nil {
			color.destroy()
		}
		if depth != nil {
			depth.destroy()
		}
	})
	return nil
}

// ID returns the texture's id.
func (t *Texture) ID() int { return t.id }

// Name returns the texture's name.
func (t *Texture) Name() string { return t.name }

// Kind returns the texture's kind.
func (t *Texture) Kind() TextureKind { return t.kind }

// Editable returns whether t accepts Upload calls.
func (t *Texture) Editable() bool { return t.editable && t.kind != TexExternal }

// main returns the color image, or the depth image if
// t has no color.
func (t *Texture) main() *image {
	if t.color != nil {
		return t.color
	}
	return t.depth
}

// Width returns the width of the texture's images.
func (t *Texture) Width() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if img := t.main(); img != nil {
		return img.width
	}
	return 0
}

// Height returns the height of the texture's images.
func (t *Texture) Height() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if img := t.main(); img != nil {
		return img.height
	}
	return 0
}

// Depth returns the depth of the texture's images,
// which is always 1 for textures that have images.
func (t *Texture) Depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.main() != nil {
		return 1
	}
	return 0
}

// Layers returns the number of layers.
func (t *Texture) Layers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if img := t.main(); img != nil {
		return img.layers
	}
	return 0
}

// Levels returns the number of mip levels.
func (t *Texture) Levels() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if img := t.main(); img != nil {
		return img.levels
	}
	return 0
}

// Samples returns the sample count.
func (t *Texture) Samples() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if img := t.main(); img != nil {
		return img.samples
	}
	return 0
}

// Format returns the pixel format of the color image,
// or of the depth image if t has no color.
func (t *Texture) Format() driver.PixelFmt {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if img := t.main(); img != nil {
		return img.pf
	}
	return 0
}

// HasColor returns whether t has a color image.
func (t *Texture) HasColor() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.color != nil
}

// HasDepth returns whether t has a depth image.
func (t *Texture) HasDepth() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.depth != nil
}

// selectImage returns the image that r refers to.
// t.mu must be held.
func (t *Texture) selectImage(depth bool) (*image, error) {
	if t.deleted {
		return nil, errors.Wrapf(ErrNotFound, texPrefix+"%q was deleted", t.name)
	}
	img := t.color
	if depth {
		img = t.depth
	}
	if img == nil {
		if t.kind == TexProcedural {
			return nil, errors.Wrapf(ErrUnsupportedFormat, texPrefix+"%q is procedural", t.name)
		}
		return nil, errors.Wrapf(ErrInvalidParam, texPrefix+"%q has no such image (depth: %t)", t.name, depth)
	}
	return img, nil
}

// Layout returns the layout tag of a subresource of the
// color image (or of the depth image, if depth is set).
func (t *Texture) Layout(layer, level int, depth bool) (driver.Layout, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	img, err := t.selectImage(depth)
	if err != nil {
		return 0, err
	}
	if layer < 0 || layer >= img.layers || level < 0 || level >= img.levels {
		return 0, errors.Wrapf(ErrOutOfRange, texPrefix+"layer %d, level %d", layer, level)
	}
	return img.layout(layer, level), nil
}

// Image returns the color image of t (or the depth
// image, if depth is set).
func (t *Texture) Image(depth bool) (driver.Image, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	img, err := t.selectImage(depth)
	if err != nil {
		return nil, err
	}
	return img.img, nil
}

// View returns a view of every subresource of the
// color image (or of the depth image, if depth is set).
// The view is owned by t.
func (t *Texture) View(depth bool) (driver.ImageView, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	img, err := t.selectImage(depth)
	if err != nil {
		return nil, err
	}
	return img.wholeView()
}

// LayerView returns a view of a single layer of the
// color image (or of the depth image, if depth is set).
// The view is owned by t.
func (t *Texture) LayerView(layer int, depth bool) (driver.ImageView, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	img, err := t.selectImage(depth)
	if err != nil {
		return nil, err
	}
	return img.layerView(layer)
}

func (t *Texture) upload(r Region, data []byte, commit bool) (*Transfer, error) {
	if err := t.e.checkOpen(); err != nil {
		return nil, err
	}
	if !t.Editable() {
		return nil, errors.Wrapf(ErrEditNotAllowed, texPrefix+"%q", t.name)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	img, err := t.selectImage(r.Depth)
	if err != nil {
		return nil, err
	}
	return t.e.uploadImage(img, r, data, commit)
}

// Upload copies data into a region of t.
// data must hold at least the number of bytes that the
// region spans, tightly packed. Extra bytes are ignored.
// Subresources are left in the layout they were in.
func (t *Texture) Upload(r Region, data []byte) error {
	_, err := t.upload(r, data, true)
	return err
}

// UploadAsync is like Upload but does not submit the
// work. The returned Transfer must be waited on.
func (t *Texture) UploadAsync(r Region, data []byte) (*Transfer, error) {
	return t.upload(r, data, false)
}

func (t *Texture) download(r Region, rs *Resample, commit bool) (*Transfer, error) {
	if err := t.e.checkOpen(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	img, err := t.selectImage(r.Depth)
	if err != nil {
		return nil, err
	}
	if img.samples != 1 {
		return nil, errors.Wrapf(ErrUnsupportedFormat, texPrefix+"cannot read multisample image")
	}
	return t.e.downloadImage(img, r, rs, commit)
}

// Download reads a region of t back.
// If rs is not nil, the region is resampled to the
// given extent and format first.
func (t *Texture) Download(r Region, rs *Resample) ([]byte, error) {
	tr, err := t.download(r, rs, true)
	if err != nil {
		return nil, err
	}
	return tr.Wait()
}

// DownloadAsync is like Download but does not submit the
// work. The data is returned by the Transfer's Wait
// method.
func (t *Texture) DownloadAsync(r Region, rs *Resample) (*Transfer, error) {
	return t.download(r, rs, false)
}

// BlitTo copies the first level of a layer of t's color
// image into the same layer of dst's color image,
// scaling it to fit. Both textures are left in the
// layouts they were in.
func (t *Texture) BlitTo(dst *Texture, layer int, filter driver.Filter) error {
	if err := t.e.checkOpen(); err != nil {
		return err
	}
	if dst == t {
		return errors.Wrap(ErrInvalidParam, texPrefix+"blit source and destination are the same")
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	dst.mu.RLock()
	defer dst.mu.RUnlock()
	src, err := t.selectImage(false)
	if err != nil {
		return err
	}
	to, err := dst.selectImage(false)
	if err != nil {
		return err
	}
	switch {
	case layer < 0 || layer >= src.layers || layer >= to.layers:
		return errors.Wrapf(ErrOutOfRange, texPrefix+"layer %d", layer)
	case src.samples != 1 || to.samples != 1:
		return errors.Wrap(ErrUnsupportedFormat, texPrefix+"cannot blit multisample images")
	}
	_, err = t.e.transfer(func(w *work, _ *Transfer) error {
		gs := src.acquire(w, subrange{layer, 1, 0, 1}, driver.LCopySrc)
		gd := to.acquire(w, subrange{layer, 1, 0, 1}, driver.LCopyDst)
		w.cb.BlitImage(&driver.ImageBlit{
			From:      src.img,
			FromLayer: layer,
			FromSize:  driver.Dim3D{Width: src.width, Height: src.height, Depth: 1},
			To:        to.img,
			ToLayer:   layer,
			ToSize:    driver.Dim3D{Width: to.width, Height: to.height, Depth: 1},
			Filter:    filter,
		})
		gd.restore(w)
		gs.restore(w)
		return nil
	}, true)
	return err
}

// Resize recreates the images of an attachment with a
// new extent. Content is not preserved.
// The images are replaced even when the new extent is
// smaller. It does nothing if the extent is unchanged.
func (t *Texture) Resize(width, height int) error {
	if err := t.e.checkOpen(); err != nil {
		return err
	}
	if t.kind != TexAttachment && t.kind != TexCube {
		return errors.Wrapf(ErrEditNotAllowed, texPrefix+"%q is not an attachment", t.name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return errors.Wrapf(ErrNotFound, texPrefix+"%q was deleted", t.name)
	}
	if width == t.attach.Width && height == t.attach.Height {
		return nil
	}
	p := t.attach
	p.Width, p.Height = width, height
	if err := p.validate(ctxt.Limits(), t.kind == TexCube); err != nil {
		return err
	}
	color, depth, err := t.e.newAttachImages(&p, t.kind == TexCube)
	if err != nil {
		return err
	}
	oldColor, oldDepth := t.color, t.depth
	t.color, t.depth, t.attach = color, depth, p
	t.e.retire(func() {
		if oldColor != nil {
			oldColor.destroy()
		}
		if oldDepth != nil {
			oldDepth.destroy()
		}
	})
	t.e.textures.markDirty()
	t.e.log.WithFields(log.Fields{"texture": t.name, "width": width, "height": height}).Debug("resized")
	return nil
}

// SetSampler sets the sampler stored in t's record.
func (t *Texture) SetSampler(sampler int) error {
	if sampler < 0 || sampler >= maxSampler {
		return errors.Wrapf(ErrOutOfRange, texPrefix+"sampler %d", sampler)
	}
	t.mu.Lock()
	t.sampler = int32(sampler)
	t.mu.Unlock()
	t.e.textures.markDirty()
	return nil
}

// SetProcedural sets the pattern of a procedural
// texture.
func (t *Texture) SetProcedural(color1, color2 mgl32.Vec4, scale float32) error {
	if t.kind != TexProcedural {
		return errors.Wrapf(ErrEditNotAllowed, texPrefix+"%q is not procedural", t.name)
	}
	t.mu.Lock()
	t.color1, t.color2, t.scale = color1, color2, scale
	t.mu.Unlock()
	t.e.textures.markDirty()
	return nil
}

// TextureRecord is the per-texture entry of the array
// returned by Engine.TextureRecords.
type TextureRecord struct {
	Color1  mgl32.Vec4
	Color2  mgl32.Vec4
	Kind    int32
	Format  int32
	Levels  int32
	Sampler int32
	Scale   float32
	_       [3]float32
}

func textureRecord(t *Texture) TextureRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r := TextureRecord{
		Color1:  t.color1,
		Color2:  t.color2,
		Kind:    int32(t.kind),
		Sampler: t.sampler,
		Scale:   t.scale,
	}
	if img := t.main(); img != nil {
		r.Format = int32(img.pf)
		r.Levels = int32(img.levels)
	}
	return r
}
