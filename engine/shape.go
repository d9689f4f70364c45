// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// PlaneData returns a square plane of the given size on
// the XZ plane, centered at the origin and facing +Y.
// Each side is divided into segments quads.
func PlaneData(size float32, segments int) *MeshData {
	segments = max(segments, 1)
	n := segments + 1
	d := &MeshData{
		Positions: make([]mgl32.Vec3, 0, n*n),
		Normals:   make([]mgl32.Vec3, 0, n*n),
		TexCoords: make([]mgl32.Vec2, 0, n*n),
		Indices:   make([]uint32, 0, segments*segments*6),
	}
	for j := 0; j < n; j++ {
		v := float32(j) / float32(segments)
		for i := 0; i < n; i++ {
			u := float32(i) / float32(segments)
			d.Positions = append(d.Positions, mgl32.Vec3{(u - 0.5) * size, 0, (v - 0.5) * size})
			d.Normals = append(d.Normals, mgl32.Vec3{0, 1, 0})
			d.TexCoords = append(d.TexCoords, mgl32.Vec2{u, v})
		}
	}
	for j := 0; j < segments; j++ {
		for i := 0; i < segments; i++ {
			a := uint32(j*n + i)
			b, c, e := a+1, a+uint32(n), a+uint32(n)+1
			d.Indices = append(d.Indices, a, c, b, b, c, e)
		}
	}
	return d
}

// BoxData returns an axis-aligned box with the given
// extent, centered at the origin. Each face has its own
// four vertices.
func BoxData(extent mgl32.Vec3) *MeshData {
	h := extent.Mul(0.5)
	type face struct{ n, u, v mgl32.Vec3 }
	faces := [6]face{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	d := &MeshData{
		Positions: make([]mgl32.Vec3, 0, 24),
		Normals:   make([]mgl32.Vec3, 0, 24),
		TexCoords: make([]mgl32.Vec2, 0, 24),
		Indices:   make([]uint32, 0, 36),
	}
	for _, f := range faces {
		base := uint32(len(d.Positions))
		for _, c := range [4]mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
			p := f.n.Add(f.u.Mul(c[0]*2 - 1)).Add(f.v.Mul(c[1]*2 - 1))
			d.Positions = append(d.Positions, mgl32.Vec3{p[0] * h[0], p[1] * h[1], p[2] * h[2]})
			d.Normals = append(d.Normals, f.n)
			d.TexCoords = append(d.TexCoords, mgl32.Vec2{c[0], 1 - c[1]})
		}
		d.Indices = append(d.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return d
}

// SphereData returns a UV sphere of the given radius,
// centered at the origin. The poles lie on the Y axis.
// slices is clamped to at least 3 and stacks to at least
// 2. The seam duplicates vertices so that texture
// coordinates wrap.
func SphereData(radius float32, slices, stacks int) *MeshData {
	slices, stacks = max(slices, 3), max(stacks, 2)
	n := (slices + 1) * (stacks + 1)
	d := &MeshData{
		Positions: make([]mgl32.Vec3, 0, n),
		Normals:   make([]mgl32.Vec3, 0, n),
		TexCoords: make([]mgl32.Vec2, 0, n),
		Indices:   make([]uint32, 0, slices*(stacks-1)*6),
	}
	for j := 0; j <= stacks; j++ {
		v := float32(j) / float32(stacks)
		sp, cp := math.Sincos(math.Pi * float64(v))
		for i := 0; i <= slices; i++ {
			u := float32(i) / float32(slices)
			st, ct := math.Sincos(2 * math.Pi * float64(u))
			nrm := mgl32.Vec3{float32(sp * st), float32(cp), float32(sp * ct)}
			d.Positions = append(d.Positions, nrm.Mul(radius))
			d.Normals = append(d.Normals, nrm)
			d.TexCoords = append(d.TexCoords, mgl32.Vec2{u, v})
		}
	}
	// Pole rows produce a single triangle per slice.
	for j := 0; j < stacks; j++ {
		for i := 0; i < slices; i++ {
			a := uint32(j*(slices+1) + i)
			b, c := a+1, a+uint32(slices+1)
			e := c + 1
			if j != stacks-1 {
				d.Indices = append(d.Indices, a, c, e)
			}
			if j != 0 {
				d.Indices = append(d.Indices, a, e, b)
			}
		}
	}
	return d
}

// CreatePlane creates a plane mesh from PlaneData.
func (e *Engine) CreatePlane(name string, size float32, segments int, param *MeshParam) (*Mesh, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidParam, meshPrefix+"plane size %v", size)
	}
	return e.CreateMesh(name, PlaneData(size, segments), param)
}

// CreateBox creates a box mesh from BoxData.
func (e *Engine) CreateBox(name string, extent mgl32.Vec3, param *MeshParam) (*Mesh, error) {
	if extent[0] <= 0 || extent[1] <= 0 || extent[2] <= 0 {
		return nil, errors.Wrapf(ErrInvalidParam, meshPrefix+"box extent %v", extent)
	}
	return e.CreateMesh(name, BoxData(extent), param)
}

// CreateSphere creates a sphere mesh from SphereData.
func (e *Engine) CreateSphere(name string, radius float32, slices, stacks int, param *MeshParam) (*Mesh, error) {
	if radius <= 0 {
		return nil, errors.Wrapf(ErrInvalidParam, meshPrefix+"sphere radius %v", radius)
	}
	return e.CreateMesh(name, SphereData(radius, slices, stacks), param)
}
