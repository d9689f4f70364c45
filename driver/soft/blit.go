// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"encoding/binary"
	goimage "image"
	"image/color"
	"math"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/gviegas/devres/driver"
)

// plane adapts a single 2D image subresource to
// draw.Image, so that blits can use the scalers of
// golang.org/x/image/draw.
// Pixels are exchanged as non-premultiplied 16-bit
// colors, so floating-point channels are clamped to
// [0, 1]. Blits between two float formats use
// scaleFloat instead.
type plane struct {
	pf  driver.PixelFmt
	pix []byte
	w   int
	h   int
}

func (p *plane) ColorModel() color.Model { return color.NRGBA64Model }

func (p *plane) Bounds() goimage.Rectangle { return goimage.Rect(0, 0, p.w, p.h) }

func (p *plane) At(x, y int) color.Color {
	if !(goimage.Point{x, y}.In(p.Bounds())) {
		return color.NRGBA64{}
	}
	s := p.pix[(y*p.w+x)*p.pf.Size():]
	switch p.pf {
	case driver.RGBA8un, driver.RGBA8sRGB:
		return color.NRGBA64{unorm8(s[0]), unorm8(s[1]), unorm8(s[2]), unorm8(s[3])}
	case driver.BGRA8un:
		return color.NRGBA64{unorm8(s[2]), unorm8(s[1]), unorm8(s[0]), unorm8(s[3])}
	case driver.RG8un:
		return color.NRGBA64{unorm8(s[0]), unorm8(s[1]), 0, 0xffff}
	case driver.R8un:
		return color.NRGBA64{unorm8(s[0]), 0, 0, 0xffff}
	case driver.RGBA32f:
		return color.NRGBA64{float(s), float(s[4:]), float(s[8:]), float(s[12:])}
	case driver.RG32f:
		return color.NRGBA64{float(s), float(s[4:]), 0, 0xffff}
	case driver.R32f:
		return color.NRGBA64{float(s), 0, 0, 0xffff}
	}
	return color.NRGBA64{}
}

func (p *plane) Set(x, y int, c color.Color) {
	if !(goimage.Point{x, y}.In(p.Bounds())) {
		return
	}
	n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
	s := p.pix[(y*p.w+x)*p.pf.Size():]
	switch p.pf {
	case driver.RGBA8un, driver.RGBA8sRGB:
		s[0], s[1], s[2], s[3] = byte(n.R>>8), byte(n.G>>8), byte(n.B>>8), byte(n.A>>8)
	case driver.BGRA8un:
		s[0], s[1], s[2], s[3] = byte(n.B>>8), byte(n.G>>8), byte(n.R>>8), byte(n.A>>8)
	case driver.RG8un:
		s[0], s[1] = byte(n.R>>8), byte(n.G>>8)
	case driver.R8un:
		s[0] = byte(n.R >> 8)
	case driver.RGBA32f:
		putFloat(s, n.R)
		putFloat(s[4:], n.G)
		putFloat(s[8:], n.B)
		putFloat(s[12:], n.A)
	case driver.RG32f:
		putFloat(s, n.R)
		putFloat(s[4:], n.G)
	case driver.R32f:
		putFloat(s, n.R)
	}
}

func unorm8(b byte) uint16 { return uint16(b) * 0x101 }

func float(b []byte) uint16 {
	f := math.Float32frombits(binary.LittleEndian.Uint32(b))
	switch {
	case !(f > 0):
		return 0
	case f >= 1:
		return 0xffff
	}
	return uint16(f*0xffff + 0.5)
}

func putFloat(b []byte, v uint16) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)/0xffff))
}

// floatChannels returns the number of channels of pf if
// it is a 32-bit float format.
func floatChannels(pf driver.PixelFmt) (n int, ok bool) {
	switch pf {
	case driver.RGBA32f:
		return 4, true
	case driver.RG32f:
		return 2, true
	case driver.R32f:
		return 1, true
	}
	return 0, false
}

// fplane is a 2D subresource of a float format.
type fplane struct {
	pix []byte
	w   int
	n   int
}

// at returns the texel at (x, y). Missing channels read
// as 0, except alpha which reads as 1.
func (p *fplane) at(x, y int) [4]float32 {
	v := [4]float32{0, 0, 0, 1}
	s := p.pix[(y*p.w+x)*p.n*4:]
	for c := range p.n {
		v[c] = math.Float32frombits(binary.LittleEndian.Uint32(s[c*4:]))
	}
	return v
}

func (p *fplane) set(x, y int, v [4]float32) {
	s := p.pix[(y*p.w+x)*p.n*4:]
	for c := range p.n {
		binary.LittleEndian.PutUint32(s[c*4:], math.Float32bits(v[c]))
	}
}

// linearTaps returns the two source coordinates and the
// weight of the second one for destination coordinate d.
// Sample positions match draw.BiLinear.
func linearTaps(d, dn, sn int) (s0, s1 int, frac float32) {
	s := (float64(d)+0.5)*float64(sn)/float64(dn) - 0.5
	switch {
	case s < 0:
		return 0, 0, 0
	case int(s)+1 >= sn:
		return sn - 1, sn - 1, 0
	}
	s0 = int(s)
	return s0, s0 + 1, float32(s - float64(s0))
}

func lerp(a, b, f float32) float32 { return a + (b-a)*f }

// scaleFloat scales sr of src into dr of dst at full
// float precision. Sample positions match draw.NearestNeighbor
// and draw.BiLinear, whose own implementations go through
// 16-bit colors.
func scaleFloat(dst *fplane, dr goimage.Rectangle, src *fplane, sr goimage.Rectangle, linear bool) {
	sw, sh := sr.Dx(), sr.Dy()
	dw, dh := dr.Dx(), dr.Dy()
	for dy := range dh {
		for dx := range dw {
			var v [4]float32
			if !linear {
				sx := (2*dx + 1) * sw / (2 * dw)
				sy := (2*dy + 1) * sh / (2 * dh)
				v = src.at(sr.Min.X+sx, sr.Min.Y+sy)
			} else {
				x0, x1, fx := linearTaps(dx, dw, sw)
				y0, y1, fy := linearTaps(dy, dh, sh)
				s00 := src.at(sr.Min.X+x0, sr.Min.Y+y0)
				s10 := src.at(sr.Min.X+x1, sr.Min.Y+y0)
				s01 := src.at(sr.Min.X+x0, sr.Min.Y+y1)
				s11 := src.at(sr.Min.X+x1, sr.Min.Y+y1)
				for c := range v {
					v[c] = lerp(lerp(s00[c], s10[c], fx), lerp(s01[c], s11[c], fx), fy)
				}
			}
			dst.set(dr.Min.X+dx, dr.Min.Y+dy, v)
		}
	}
}

// blit executes a blit command.
func blit(p *driver.ImageBlit) error {
	from, err := asImage(p.From)
	if err != nil {
		return err
	}
	to, err := asImage(p.To)
	if err != nil {
		return err
	}
	if err = from.checkRange(p.FromLayer, 1, p.FromLevel, 1); err != nil {
		return err
	}
	if err = to.checkRange(p.ToLayer, 1, p.ToLevel, 1); err != nil {
		return err
	}
	switch {
	case from.pf.IsDS() || to.pf.IsDS():
		return errors.New("soft: cannot blit depth/stencil images")
	case from.samples != 1 || to.samples != 1:
		return errors.New("soft: cannot blit multisample images")
	case from.size.Depth != 1 || to.size.Depth != 1:
		return errors.New("soft: cannot blit 3D images")
	}
	fsz := from.levelSize(p.FromLevel)
	tsz := to.levelSize(p.ToLevel)
	sr := goimage.Rect(p.FromOff.X, p.FromOff.Y, p.FromOff.X+p.FromSize.Width, p.FromOff.Y+p.FromSize.Height)
	dr := goimage.Rect(p.ToOff.X, p.ToOff.Y, p.ToOff.X+p.ToSize.Width, p.ToOff.Y+p.ToSize.Height)
	if sr.Empty() || !sr.In(goimage.Rect(0, 0, fsz.Width, fsz.Height)) ||
		dr.Empty() || !dr.In(goimage.Rect(0, 0, tsz.Width, tsz.Height)) {
		return errors.Newf("soft: blit region out of bounds (%v -> %v)", sr, dr)
	}

	// Lock in a fixed order when blitting within one image.
	from.mu.Lock()
	defer from.mu.Unlock()
	if to != from {
		to.mu.Lock()
		defer to.mu.Unlock()
	}
	if from.dead || to.dead {
		return errors.New("soft: image used after Destroy")
	}
	if err = from.checkLayout(p.FromLayer, 1, p.FromLevel, driver.LCopySrc, driver.LCommon); err != nil {
		return err
	}
	if err = to.checkLayout(p.ToLayer, 1, p.ToLevel, driver.LCopyDst, driver.LCommon); err != nil {
		return err
	}
	if from == to && p.FromLayer == p.ToLayer && p.FromLevel == p.ToLevel {
		return errors.New("soft: blit source and destination overlap")
	}
	fn, fok := floatChannels(from.pf)
	tn, tok := floatChannels(to.pf)
	if fok && tok {
		src := &fplane{from.data[from.sub(p.FromLayer, p.FromLevel)], fsz.Width, fn}
		dst := &fplane{to.data[to.sub(p.ToLayer, p.ToLevel)], tsz.Width, tn}
		scaleFloat(dst, dr, src, sr, p.Filter == driver.FLinear)
		return nil
	}
	src := &plane{from.pf, from.data[from.sub(p.FromLayer, p.FromLevel)], fsz.Width, fsz.Height}
	dst := &plane{to.pf, to.data[to.sub(p.ToLayer, p.ToLevel)], tsz.Width, tsz.Height}
	var scaler draw.Scaler = draw.NearestNeighbor
	if p.Filter == driver.FLinear {
		scaler = draw.BiLinear
	}
	scaler.Scale(dst, dr, src, sr, draw.Src, nil)
	return nil
}
