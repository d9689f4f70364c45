// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/devres/driver"
	"github.com/gviegas/devres/driver/soft"
)

// check checks that the layout tags of tex match the
// device.
func (tex *Texture) check(t *testing.T) {
	t.Helper()
	tex.mu.RLock()
	defer tex.mu.RUnlock()
	for _, img := range [2]*image{tex.color, tex.depth} {
		if img != nil {
			checkLayouts(t, img)
		}
	}
}

func TestComputeLevels(t *testing.T) {
	for _, x := range [...]struct{ w, h, want int }{
		{1, 1, 1},
		{2, 1, 2},
		{64, 64, 7},
		{64, 16, 7},
		{100, 3, 7},
		{1024, 1024, 11},
	} {
		if n := ComputeLevels(x.w, x.h); n != x.want {
			t.Fatalf("ComputeLevels(%d, %d):\nhave %d\nwant %d", x.w, x.h, n, x.want)
		}
	}
}

func TestCreateTexture(t *testing.T) {
	e := newTestEngine(t, nil)
	tex, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA32f, Width: 64, Height: 64, Editable: true}, rgba32f(64*64, 0.5))
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}
	switch {
	case tex.Name() != "T", tex.Kind() != Tex2D, !tex.Editable(),
		tex.Width() != 64, tex.Height() != 64, tex.Depth() != 1,
		tex.Layers() != 1, tex.Levels() != 1, tex.Samples() != 1,
		tex.Format() != driver.RGBA32f, !tex.HasColor(), tex.HasDepth():
		t.Fatalf("Engine.CreateTexture: unexpected texture\n%+v", tex)
	}
	if l, err := tex.Layout(0, 0, false); l != driver.LShaderRead || err != nil {
		t.Fatalf("Texture.Layout:\nhave %v, %v\nwant %v, nil", l, err, driver.LShaderRead)
	}
	tex.check(t)

	data, err := tex.Download(Region{}, nil)
	if err != nil {
		t.Fatalf("Texture.Download: unexpected error: %v", err)
	}
	if !bytes.Equal(data, rgba32f(64*64, 0.5)) {
		t.Fatal("Texture.Download: data differs from creation data")
	}
	tex.check(t)

	if x, err := e.Texture("T"); x != tex || err != nil {
		t.Fatalf("Engine.Texture:\nhave %p, %v\nwant %p, nil", x, err, tex)
	}
	if x, err := e.TextureByID(tex.ID()); x != tex || err != nil {
		t.Fatalf("Engine.TextureByID:\nhave %p, %v\nwant %p, nil", x, err, tex)
	}
	if _, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 1, Height: 1}, make([]byte, 4)); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("Engine.CreateTexture: duplicate\nhave %v\nwant %v", err, ErrDuplicateName)
	}
}

func TestCreateTextureInvalid(t *testing.T) {
	e := newTestEngine(t, nil)
	for _, x := range [...]struct {
		param *TexParam
		data  []byte
		want  error
	}{
		{nil, nil, ErrInvalidParam},
		{&TexParam{PixelFmt: driver.RGBA8un, Width: 0, Height: 4}, nil, ErrInvalidParam},
		{&TexParam{PixelFmt: driver.RGBA8un, Width: 1 << 20, Height: 4}, nil, ErrInvalidParam},
		{&TexParam{PixelFmt: driver.RGBA8un, Width: 4, Height: 4, Levels: 4}, make([]byte, 64), ErrInvalidParam},
		{&TexParam{PixelFmt: driver.D32f, Width: 4, Height: 4}, make([]byte, 64), ErrUnsupportedFormat},
		{&TexParam{PixelFmt: -1, Width: 4, Height: 4}, make([]byte, 64), ErrUnsupportedFormat},
		{&TexParam{PixelFmt: driver.RGBA8un, Width: 4, Height: 4}, make([]byte, 63), ErrSizeMismatch},
		{&TexParam{PixelFmt: driver.RGBA8un, Width: 4, Height: 4, Layers: 2}, make([]byte, 64), ErrSizeMismatch},
	} {
		_, err := e.CreateTexture("T", x.param, x.data)
		if !errors.Is(err, x.want) {
			t.Fatalf("Engine.CreateTexture(%+v):\nhave %v\nwant %v", x.param, err, x.want)
		}
		if !strings.Contains(err.Error(), texPrefix) {
			t.Fatalf("Engine.CreateTexture: error lacks prefix\n%v", err)
		}
	}
	if n := e.TextureCount(); n != 0 {
		t.Fatalf("Engine.TextureCount:\nhave %d\nwant 0", n)
	}
}

func TestCreateTextureMips(t *testing.T) {
	e := newTestEngine(t, nil)
	tex, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 16, Height: 8, Layers: 2, Levels: 5}, bytes.Repeat([]byte{255, 0, 0, 255}, 16*8*2))
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}
	tex.check(t)
	for l := 0; l < 2; l++ {
		for lv := 0; lv < 5; lv++ {
			if x, _ := tex.Layout(l, lv, false); x != driver.LShaderRead {
				t.Fatalf("Texture.Layout(%d, %d):\nhave %v\nwant %v", l, lv, x, driver.LShaderRead)
			}
		}
	}
	// A solid color survives filtering.
	img, _ := tex.Image(false)
	for lv := 1; lv < 5; lv++ {
		px := soft.Pixels(img, 1, lv)
		w, h := max(1, 16>>lv), max(1, 8>>lv)
		if want := bytes.Repeat([]byte{255, 0, 0, 255}, w*h); !bytes.Equal(px, want) {
			t.Fatalf("soft.Pixels(1, %d):\nhave %v\nwant %v", lv, px, want)
		}
	}
	if _, err := tex.Layout(2, 0, false); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Texture.Layout: bad layer\nhave %v\nwant %v", err, ErrOutOfRange)
	}
}

func TestTextureUpload(t *testing.T) {
	e := newTestEngine(t, nil)
	tex, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 8, Height: 8, Editable: true}, make([]byte, 256))
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}
	// Update a 2x2 region at (3, 4).
	patch := bytes.Repeat([]byte{1, 2, 3, 4}, 4)
	if err := tex.Upload(Region{X: 3, Y: 4, Width: 2, Height: 2}, patch); err != nil {
		t.Fatalf("Texture.Upload: unexpected error: %v", err)
	}
	tex.check(t)
	data, err := tex.Download(Region{}, nil)
	if err != nil {
		t.Fatalf("Texture.Download: unexpected error: %v", err)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			want := []byte{0, 0, 0, 0}
			if x >= 3 && x < 5 && y >= 4 && y < 6 {
				want = []byte{1, 2, 3, 4}
			}
			i := (y*8 + x) * 4
			if !bytes.Equal(data[i:i+4], want) {
				t.Fatalf("Texture.Download: pixel (%d, %d)\nhave %v\nwant %v", x, y, data[i:i+4], want)
			}
		}
	}
	sub, err := tex.Download(Region{X: 3, Y: 4, Width: 2, Height: 2}, nil)
	if err != nil || !bytes.Equal(sub, patch) {
		t.Fatalf("Texture.Download: region\nhave %v, %v\nwant %v, nil", sub, err, patch)
	}

	for _, x := range [...]struct {
		r    Region
		data []byte
		want error
	}{
		{Region{X: 7, Width: 2, Height: 1}, make([]byte, 8), ErrOutOfRange},
		{Region{Layer: 1}, make([]byte, 256), ErrOutOfRange},
		{Region{Level: 1}, make([]byte, 256), ErrOutOfRange},
		{Region{X: -1, Width: 1, Height: 1}, make([]byte, 4), ErrOutOfRange},
		{Region{}, make([]byte, 255), ErrSizeMismatch},
	} {
		if err := tex.Upload(x.r, x.data); !errors.Is(err, x.want) {
			t.Fatalf("Texture.Upload(%+v):\nhave %v\nwant %v", x.r, err, x.want)
		}
	}
	tex.check(t)

	ro, err := e.CreateTexture("RO", &TexParam{PixelFmt: driver.RGBA8un, Width: 8, Height: 8}, make([]byte, 256))
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}
	if err := ro.Upload(Region{}, make([]byte, 256)); !errors.Is(err, ErrEditNotAllowed) {
		t.Fatalf("Texture.Upload: not editable\nhave %v\nwant %v", err, ErrEditNotAllowed)
	}
}

func TestTextureAsync(t *testing.T) {
	e := newTestEngine(t, nil)
	tex, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA32f, Width: 4, Height: 4, Editable: true}, rgba32f(16, 0))
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}
	up, err := tex.UploadAsync(Region{}, rgba32f(16, 0.25))
	if err != nil {
		t.Fatalf("Texture.UploadAsync: unexpected error: %v", err)
	}
	down, err := tex.DownloadAsync(Region{}, nil)
	if err != nil {
		t.Fatalf("Texture.DownloadAsync: unexpected error: %v", err)
	}
	if up.Future().Resolved() || down.Future().Resolved() {
		t.Fatal("Transfer.Future: resolved before submission")
	}
	// Waiting on the download submits both, in order.
	data, err := down.Wait()
	if err != nil {
		t.Fatalf("Transfer.Wait: unexpected error: %v", err)
	}
	if !bytes.Equal(data, rgba32f(16, 0.25)) {
		t.Fatal("Transfer.Wait: download does not observe earlier upload")
	}
	if _, err := up.Wait(); err != nil {
		t.Fatalf("Transfer.Wait: upload\nhave %v\nwant nil", err)
	}
	if d2, _ := down.Wait(); !bytes.Equal(d2, data) {
		t.Fatal("Transfer.Wait: second call returned different data")
	}
	tex.check(t)
}

func TestTextureResample(t *testing.T) {
	e := newTestEngine(t, nil)
	src := bytes.Repeat([]byte{0, 255, 0, 255}, 8*8)
	tex, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 8, Height: 8}, src)
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}
	g := softGPU(t, e)
	images := g.Stats().Images
	data, err := tex.Download(Region{}, &Resample{Width: 4, Height: 2, Format: driver.RGBA8un, Filter: driver.FNearest})
	if err != nil {
		t.Fatalf("Texture.Download: resample\nhave %v\nwant nil", err)
	}
	if want := bytes.Repeat([]byte{0, 255, 0, 255}, 4*2); !bytes.Equal(data, want) {
		t.Fatalf("Texture.Download: resample\nhave %v\nwant %v", data, want)
	}
	if n := g.Stats().Images; n != images {
		t.Fatalf("GPU.Stats: temporary image leaked\nhave %d\nwant %d", n, images)
	}
	tex.check(t)
	if _, err := tex.Download(Region{}, &Resample{Width: 0, Height: 2, Format: driver.RGBA8un}); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("Texture.Download: bad resample\nhave %v\nwant %v", err, ErrInvalidParam)
	}
}

func TestTextureResampleFloat(t *testing.T) {
	e := newTestEngine(t, nil)
	// Values outside [0, 1] and values with no 16-bit
	// representation.
	px := make([]float32, 4*4*4)
	for i := range px {
		px[i] = []float32{2, 0.3, -1.5, 1e4}[i%4] * float32(1+i/16)
	}
	src, _ := binary.Append(nil, binary.LittleEndian, px)
	tex, err := e.CreateTexture("F", &TexParam{PixelFmt: driver.RGBA32f, Width: 4, Height: 4}, src)
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}

	data, err := tex.Download(Region{}, &Resample{Width: 8, Height: 8, Format: driver.RGBA32f, Filter: driver.FNearest})
	if err != nil {
		t.Fatalf("Texture.Download: nearest\nhave %v\nwant nil", err)
	}
	have := make([]float32, 8*8*4)
	if _, err := binary.Decode(data, binary.LittleEndian, have); err != nil {
		t.Fatalf("binary.Decode: unexpected error: %v", err)
	}
	for y := range 8 {
		for x := range 8 {
			for c := range 4 {
				h, w := have[(y*8+x)*4+c], px[(y/2*4+x/2)*4+c]
				if h != w {
					t.Fatalf("Texture.Download: nearest (%d, %d)[%d]\nhave %v\nwant %v", x, y, c, h, w)
				}
			}
		}
	}

	// Uniform rows stay exact under linear filtering.
	data, err = tex.Download(Region{Y: 1, Width: 4, Height: 1}, &Resample{Width: 2, Height: 1, Format: driver.RGBA32f, Filter: driver.FLinear})
	if err != nil {
		t.Fatalf("Texture.Download: linear\nhave %v\nwant nil", err)
	}
	have = make([]float32, 2*4)
	binary.Decode(data, binary.LittleEndian, have)
	for i, h := range have {
		if w := px[16+i%4]; h != w {
			t.Fatalf("Texture.Download: linear [%d]\nhave %v\nwant %v", i, h, w)
		}
	}
	tex.check(t)
}

func TestCreateAttachment(t *testing.T) {
	e := newTestEngine(t, nil)
	tex, err := e.CreateAttachment("A", &AttachParam{
		Width:    64,
		Height:   64,
		Color:    true,
		ColorFmt: driver.RGBA8un,
		Depth:    true,
	})
	if err != nil {
		t.Fatalf("Engine.CreateAttachment: unexpected error: %v", err)
	}
	switch {
	case tex.Kind() != TexAttachment, tex.Width() != 64, tex.Height() != 64,
		tex.Depth() != 1, tex.Layers() != 1, tex.Samples() != 1,
		!tex.HasColor(), !tex.HasDepth():
		t.Fatalf("Engine.CreateAttachment: unexpected texture\n%+v", tex)
	}
	if l, _ := tex.Layout(0, 0, false); l != driver.LColorTarget {
		t.Fatalf("Texture.Layout: color\nhave %v\nwant %v", l, driver.LColorTarget)
	}
	if l, _ := tex.Layout(0, 0, true); l != driver.LDSTarget {
		t.Fatalf("Texture.Layout: depth\nhave %v\nwant %v", l, driver.LDSTarget)
	}
	tex.check(t)

	// Reading the color image back leaves it in place.
	if _, err := tex.Download(Region{}, nil); err != nil {
		t.Fatalf("Texture.Download: unexpected error: %v", err)
	}
	if l, _ := tex.Layout(0, 0, false); l != driver.LColorTarget {
		t.Fatalf("Texture.Layout: after download\nhave %v\nwant %v", l, driver.LColorTarget)
	}
	tex.check(t)
	if err := tex.Upload(Region{}, make([]byte, 64*64*4)); !errors.Is(err, ErrEditNotAllowed) {
		t.Fatalf("Texture.Upload: not editable\nhave %v\nwant %v", err, ErrEditNotAllowed)
	}

	v1, err := tex.View(false)
	if err != nil {
		t.Fatalf("Texture.View: unexpected error: %v", err)
	}
	if v2, _ := tex.View(false); v2 != v1 {
		t.Fatal("Texture.View: view not cached")
	}
	if _, err := tex.LayerView(1, false); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Texture.LayerView: bad layer\nhave %v\nwant %v", err, ErrOutOfRange)
	}

	for _, p := range [...]*AttachParam{
		nil,
		{Width: 64, Height: 64},
		{Width: 0, Height: 64, Color: true},
		{Width: 64, Height: 64, Color: true, Samples: 3},
	} {
		if _, err := e.CreateAttachment("B", p); !errors.Is(err, ErrInvalidParam) {
			t.Fatalf("Engine.CreateAttachment(%+v):\nhave %v\nwant %v", p, err, ErrInvalidParam)
		}
	}
	if _, err := e.CreateAttachment("B", &AttachParam{Width: 4, Height: 4, Color: true, ColorFmt: driver.D16un}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Engine.CreateAttachment: depth format as color\nhave %v\nwant %v", err, ErrUnsupportedFormat)
	}
}

func TestAttachmentMS(t *testing.T) {
	e := newTestEngine(t, nil)
	tex, err := e.CreateAttachment("MS", &AttachParam{Width: 32, Height: 32, Samples: 4, Color: true, ColorFmt: driver.RGBA8un})
	if err != nil {
		t.Fatalf("Engine.CreateAttachment: unexpected error: %v", err)
	}
	if n := tex.Samples(); n != 4 {
		t.Fatalf("Texture.Samples:\nhave %d\nwant 4", n)
	}
	if _, err := tex.Download(Region{}, nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Texture.Download: multisample\nhave %v\nwant %v", err, ErrUnsupportedFormat)
	}
	tex.check(t)
}

func TestCreateCube(t *testing.T) {
	e := newTestEngine(t, nil)
	tex, err := e.CreateCube("C", &AttachParam{Width: 16, Color: true, ColorFmt: driver.RGBA8un})
	if err != nil {
		t.Fatalf("Engine.CreateCube: unexpected error: %v", err)
	}
	if tex.Kind() != TexCube || tex.Layers() != 6 || tex.Height() != 16 {
		t.Fatalf("Engine.CreateCube: unexpected texture\n%+v", tex)
	}
	tex.check(t)
	if _, err := tex.View(false); err != nil {
		t.Fatalf("Texture.View: unexpected error: %v", err)
	}
	if _, err := tex.LayerView(5, false); err != nil {
		t.Fatalf("Texture.LayerView: unexpected error: %v", err)
	}
	if _, err := e.CreateCube("D", &AttachParam{Width: 16, Height: 8, Color: true}); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("Engine.CreateCube: not square\nhave %v\nwant %v", err, ErrInvalidParam)
	}
	if _, err := e.CreateCube("D", &AttachParam{Width: 16, Layers: 4, Color: true}); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("Engine.CreateCube: 4 layers\nhave %v\nwant %v", err, ErrInvalidParam)
	}
}

func TestResize(t *testing.T) {
	e := newTestEngine(t, nil)
	g := softGPU(t, e)
	tex, err := e.CreateAttachment("A", &AttachParam{Width: 64, Height: 64, Color: true, ColorFmt: driver.RGBA8un, Depth: true})
	if err != nil {
		t.Fatalf("Engine.CreateAttachment: unexpected error: %v", err)
	}
	if _, err := tex.View(false); err != nil {
		t.Fatalf("Texture.View: unexpected error: %v", err)
	}
	base := g.Stats()
	old, _ := tex.Image(false)
	if err := tex.Resize(64, 64); err != nil {
		t.Fatalf("Texture.Resize: same extent\nhave %v\nwant nil", err)
	}
	if img, _ := tex.Image(false); img != old {
		t.Fatal("Texture.Resize: same extent replaced the image")
	}
	if err := tex.Resize(32, 16); err != nil {
		t.Fatalf("Texture.Resize: unexpected error: %v", err)
	}
	if tex.Width() != 32 || tex.Height() != 16 {
		t.Fatalf("Texture.Resize: extent\nhave %dx%d\nwant 32x16", tex.Width(), tex.Height())
	}
	if img, _ := tex.Image(false); img == old {
		t.Fatal("Texture.Resize: image not replaced")
	}
	tex.check(t)
	if err := e.Sync(); err != nil {
		t.Fatalf("Engine.Sync: unexpected error: %v", err)
	}
	// The old images and view are gone.
	s := g.Stats()
	if s.Images != base.Images || s.Views != base.Views-1 {
		t.Fatalf("GPU.Stats: after Resize\nhave %+v\nwant %d images, %d views", s, base.Images, base.Views-1)
	}

	if err := tex.Resize(0, 16); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("Texture.Resize: zero width\nhave %v\nwant %v", err, ErrInvalidParam)
	}
	t2, _ := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 4, Height: 4}, make([]byte, 64))
	if err := t2.Resize(8, 8); !errors.Is(err, ErrEditNotAllowed) {
		t.Fatalf("Texture.Resize: 2D texture\nhave %v\nwant %v", err, ErrEditNotAllowed)
	}
}

func TestBlitTo(t *testing.T) {
	e := newTestEngine(t, nil)
	src, err := e.CreateTexture("S", &TexParam{PixelFmt: driver.RGBA8un, Width: 8, Height: 8}, bytes.Repeat([]byte{9, 8, 7, 255}, 64))
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}
	dst, err := e.CreateAttachment("D", &AttachParam{Width: 4, Height: 4, Color: true, ColorFmt: driver.RGBA8un})
	if err != nil {
		t.Fatalf("Engine.CreateAttachment: unexpected error: %v", err)
	}
	if err := src.BlitTo(dst, 0, driver.FLinear); err != nil {
		t.Fatalf("Texture.BlitTo: unexpected error: %v", err)
	}
	src.check(t)
	dst.check(t)
	if l, _ := dst.Layout(0, 0, false); l != driver.LColorTarget {
		t.Fatalf("Texture.Layout: after blit\nhave %v\nwant %v", l, driver.LColorTarget)
	}
	data, err := dst.Download(Region{}, nil)
	if err != nil {
		t.Fatalf("Texture.Download: unexpected error: %v", err)
	}
	if want := bytes.Repeat([]byte{9, 8, 7, 255}, 16); !bytes.Equal(data, want) {
		t.Fatalf("Texture.BlitTo: destination\nhave %v\nwant %v", data, want)
	}
	if err := src.BlitTo(src, 0, driver.FLinear); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("Texture.BlitTo: same texture\nhave %v\nwant %v", err, ErrInvalidParam)
	}
	if err := src.BlitTo(dst, 1, driver.FLinear); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Texture.BlitTo: bad layer\nhave %v\nwant %v", err, ErrOutOfRange)
	}
}

func TestCreateExternal(t *testing.T) {
	e := newTestEngine(t, nil)
	g := softGPU(t, e)
	img, err := e.GPU().NewImage(driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4, Depth: 1}, 1, 1, 1, driver.UShaderSample|driver.UCopySrc|driver.UCopyDst)
	if err != nil {
		t.Fatalf("GPU.NewImage: unexpected error: %v", err)
	}
	defer img.Destroy()
	tex, err := e.CreateExternal("X", &ExternalParam{Image: img, PixelFmt: driver.RGBA8un, Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("Engine.CreateExternal: unexpected error: %v", err)
	}
	if tex.Kind() != TexExternal || tex.Editable() {
		t.Fatalf("Engine.CreateExternal: unexpected texture\n%+v", tex)
	}
	if err := tex.Upload(Region{}, make([]byte, 64)); !errors.Is(err, ErrEditNotAllowed) {
		t.Fatalf("Texture.Upload: external\nhave %v\nwant %v", err, ErrEditNotAllowed)
	}
	// Reading undefined content moves the image home.
	if _, err := tex.Download(Region{}, nil); err != nil {
		t.Fatalf("Texture.Download: unexpected error: %v", err)
	}
	if l, _ := tex.Layout(0, 0, false); l != driver.LShaderRead {
		t.Fatalf("Texture.Layout: external after download\nhave %v\nwant %v", l, driver.LShaderRead)
	}
	tex.check(t)
	if _, err := tex.View(false); err != nil {
		t.Fatalf("Texture.View: unexpected error: %v", err)
	}
	images, views := g.Stats().Images, g.Stats().Views
	if err := e.DeleteTexture("X"); err != nil {
		t.Fatalf("Engine.DeleteTexture: unexpected error: %v", err)
	}
	if err := e.Sync(); err != nil {
		t.Fatalf("Engine.Sync: unexpected error: %v", err)
	}
	s := g.Stats()
	if s.Images != images || s.Views != views-1 {
		t.Fatalf("GPU.Stats: after deleting external texture\nhave %d images, %d views\nwant %d, %d", s.Images, s.Views, images, views-1)
	}
}

func TestProcedural(t *testing.T) {
	e := newTestEngine(t, nil)
	tex, err := e.CreateProcedural("P")
	if err != nil {
		t.Fatalf("Engine.CreateProcedural: unexpected error: %v", err)
	}
	if _, err := tex.Image(false); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Texture.Image: procedural\nhave %v\nwant %v", err, ErrUnsupportedFormat)
	}
	c1, c2 := mgl32.Vec4{1, 0, 0, 1}, mgl32.Vec4{0, 0, 1, 1}
	if err := tex.SetProcedural(c1, c2, 2); err != nil {
		t.Fatalf("Texture.SetProcedural: unexpected error: %v", err)
	}
	if err := tex.SetSampler(SamplerNearest); err != nil {
		t.Fatalf("Texture.SetSampler: unexpected error: %v", err)
	}
	if err := tex.SetSampler(maxSampler); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Texture.SetSampler: bad sampler\nhave %v\nwant %v", err, ErrOutOfRange)
	}
	r := textureRecord(tex)
	want := TextureRecord{Color1: c1, Color2: c2, Kind: int32(TexProcedural), Sampler: SamplerNearest, Scale: 2}
	if r != want {
		t.Fatalf("textureRecord:\nhave %+v\nwant %+v", r, want)
	}
	t2, _ := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 1, Height: 1}, make([]byte, 4))
	if err := t2.SetProcedural(c1, c2, 1); !errors.Is(err, ErrEditNotAllowed) {
		t.Fatalf("Texture.SetProcedural: 2D texture\nhave %v\nwant %v", err, ErrEditNotAllowed)
	}
}

func TestDeleteTexture(t *testing.T) {
	e := newTestEngine(t, nil)
	g := softGPU(t, e)
	base := g.Stats()
	tex, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 4, Height: 4}, make([]byte, 64))
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}
	if _, err := tex.LayerView(0, false); err != nil {
		t.Fatalf("Texture.LayerView: unexpected error: %v", err)
	}
	if err := e.DeleteTexture("T"); err != nil {
		t.Fatalf("Engine.DeleteTexture: unexpected error: %v", err)
	}
	if _, err := e.Texture("T"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Engine.Texture: deleted\nhave %v\nwant %v", err, ErrNotFound)
	}
	if _, err := tex.Download(Region{}, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Texture.Download: deleted\nhave %v\nwant %v", err, ErrNotFound)
	}
	if err := e.Sync(); err != nil {
		t.Fatalf("Engine.Sync: unexpected error: %v", err)
	}
	s := g.Stats()
	if s.Images != base.Images || s.Views != base.Views {
		t.Fatalf("GPU.Stats: after delete\nhave %+v\nwant %+v", s, base)
	}
	// The name can be reused.
	if _, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 4, Height: 4}, make([]byte, 64)); err != nil {
		t.Fatalf("Engine.CreateTexture: reused name\nhave %v\nwant nil", err)
	}
}

func TestTextureCapacity(t *testing.T) {
	e := newTestEngine(t, &Config{MaxTexture: 2})
	for _, name := range [...]string{"A", "B"} {
		if _, err := e.CreateProcedural(name); err != nil {
			t.Fatalf("Engine.CreateProcedural: unexpected error: %v", err)
		}
	}
	if _, err := e.CreateProcedural("C"); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Engine.CreateProcedural: full\nhave %v\nwant %v", err, ErrCapacityExceeded)
	}
	e.DeleteTexture("A")
	if tex, err := e.CreateProcedural("C"); err != nil || tex.ID() != 0 {
		t.Fatalf("Engine.CreateProcedural: after delete\nhave %v, %v\nwant id 0, nil", tex, err)
	}
}

func TestTextureAllocFail(t *testing.T) {
	e := newTestEngine(t, nil)
	g := softGPU(t, e)
	base := g.Stats()
	for n := 1; n <= 2; n++ {
		g.FailAlloc(n)
		_, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 8, Height: 8}, make([]byte, 256))
		g.FailAlloc(0)
		if !errors.Is(err, driver.ErrNoDeviceMemory) {
			t.Fatalf("Engine.CreateTexture: FailAlloc(%d)\nhave %v\nwant %v", n, err, driver.ErrNoDeviceMemory)
		}
		if _, err := e.Texture("T"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Engine.Texture: after failed creation\nhave %v\nwant %v", err, ErrNotFound)
		}
		if err := e.Sync(); err != nil {
			t.Fatalf("Engine.Sync: unexpected error: %v", err)
		}
		if s := g.Stats(); s != base {
			t.Fatalf("GPU.Stats: FailAlloc(%d)\nhave %+v\nwant %+v", n, s, base)
		}
	}
	if _, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 8, Height: 8}, make([]byte, 256)); err != nil {
		t.Fatalf("Engine.CreateTexture: after failures\nhave %v\nwant nil", err)
	}
}
