// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/devres/driver"
)

const meshPrefix = "mesh: "

// Semantic identifies one of the buffers of a mesh.
type Semantic int

// Semantics.
const (
	Position Semantic = iota
	Normal
	TexCoord
	Color
	Index

	numSemantic = iota
)

// String implements fmt.Stringer.
func (s Semantic) String() string {
	switch s {
	case Position:
		return "Position"
	case Normal:
		return "Normal"
	case TexCoord:
		return "TexCoord"
	case Color:
		return "Color"
	case Index:
		return "Index"
	default:
		return "[!] invalid Semantic value"
	}
}

// Stride returns the size in bytes of one element of
// s's buffer.
func (s Semantic) Stride() int64 {
	switch s {
	case Position, Normal:
		return 12
	case TexCoord:
		return 8
	case Color:
		return 16
	case Index:
		return 4
	default:
		panic("invalid Semantic value")
	}
}

func (s Semantic) usage() driver.Usage {
	u := driver.UShaderRead | driver.UCopySrc | driver.UCopyDst
	if s == Index {
		return u | driver.UIndexData
	}
	return u | driver.UVertexData
}

// DefaultColor is the vertex color of meshes created
// without colors.
var DefaultColor = mgl32.Vec4{1, 0, 1, 1}

// MeshData is the content of a triangle mesh.
// Only Positions is required. The other attributes, if
// present, must have one element per position.
// Without Indices, every three positions form a
// triangle.
type MeshData struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	TexCoords []mgl32.Vec2
	Colors    []mgl32.Vec4
	Indices   []uint32
}

// MeshParam describes how a mesh is created.
type MeshParam struct {
	// Editable meshes keep their vertex buffers in
	// host-visible memory and accept Edit calls.
	// Their vertices are never merged.
	Editable bool
	// SmoothNormals computes normals when none are
	// given.
	SmoothNormals bool
}

// validate checks d against the rules of triangle lists.
func (d *MeshData) validate() error {
	n := len(d.Positions)
	var reason string
	switch {
	case n == 0:
		reason = "no positions supplied"
	case len(d.Indices) == 0 && n%3 != 0:
		reason = "no indices provided and position count not a multiple of 3"
	case len(d.Indices)%3 != 0:
		reason = "index count not a multiple of 3"
	case len(d.Normals) != 0 && len(d.Normals) != n,
		len(d.TexCoords) != 0 && len(d.TexCoords) != n,
		len(d.Colors) != 0 && len(d.Colors) != n:
		return errors.Wrapf(ErrSizeMismatch, meshPrefix+"attribute lengths (normals %d, texcoords %d, colors %d) differ from position count %d",
			len(d.Normals), len(d.TexCoords), len(d.Colors), n)
	default:
		for i, x := range d.Indices {
			if int(x) >= n {
				return errors.Wrapf(ErrOutOfRange, meshPrefix+"index %d (%d) not less than position count %d", i, x, n)
			}
		}
		return nil
	}
	return errors.Wrap(ErrInvalidParam, meshPrefix+reason)
}

type vertex struct {
	pos      mgl32.Vec3
	normal   mgl32.Vec3
	texCoord mgl32.Vec2
	color    mgl32.Vec4
}

// Mesh is a named triangle mesh stored in five device
// buffers, one per Semantic.
// A Mesh is obtained from one of the Engine's factories
// and stays valid until deleted.
type Mesh struct {
	e        *Engine
	id       int
	name     string
	editable bool

	mu        sync.RWMutex
	deleted   bool
	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	texCoords []mgl32.Vec2
	colors    []mgl32.Vec4
	indices   []uint32
	bufs      [numSemantic]driver.Buffer

	centroid mgl32.Vec3
	radius   float32
	aabbMin  mgl32.Vec3
	aabbMax  mgl32.Vec3
}

// newMesh builds the host content of a mesh from d.
// Vertices are merged only if d is not indexed and the
// mesh is not editable.
func newMesh(d *MeshData, p MeshParam) *Mesh {
	n := len(d.Positions)
	vert := func(i int) vertex {
		v := vertex{pos: d.Positions[i], color: DefaultColor}
		if len(d.Normals) != 0 {
			v.normal = d.Normals[i]
		}
		if len(d.TexCoords) != 0 {
			v.texCoord = d.TexCoords[i]
		}
		if len(d.Colors) != 0 {
			v.color = d.Colors[i]
		}
		return v
	}
	m := &Mesh{editable: p.Editable}
	add := func(v vertex) {
		m.positions = append(m.positions, v.pos)
		m.normals = append(m.normals, v.normal)
		m.texCoords = append(m.texCoords, v.texCoord)
		m.colors = append(m.colors, v.color)
	}
	switch {
	case len(d.Indices) != 0:
		m.indices = append([]uint32(nil), d.Indices...)
		for i := 0; i < n; i++ {
			add(vert(i))
		}
	case p.Editable:
		m.indices = make([]uint32, n)
		for i := 0; i < n; i++ {
			m.indices[i] = uint32(i)
			add(vert(i))
		}
	default:
		seen := make(map[vertex]uint32, n)
		m.indices = make([]uint32, n)
		for i := 0; i < n; i++ {
			v := vert(i)
			x, ok := seen[v]
			if !ok {
				x = uint32(len(m.positions))
				seen[v] = x
				add(v)
			}
			m.indices[i] = x
		}
	}
	if len(d.Normals) == 0 && p.SmoothNormals {
		m.smoothNormals()
	}
	m.computeMetadata()
	return m
}

// computeMetadata computes the centroid, bounding sphere
// and bounding box of m's positions.
func (m *Mesh) computeMetadata() {
	var sum mgl32.Vec3
	m.aabbMin, m.aabbMax = m.positions[0], m.positions[0]
	for _, p := range m.positions {
		sum = sum.Add(p)
		for i := range 3 {
			m.aabbMin[i] = min(m.aabbMin[i], p[i])
			m.aabbMax[i] = max(m.aabbMax[i], p[i])
		}
	}
	m.centroid = sum.Mul(1 / float32(len(m.positions)))
	m.radius = 0
	for _, p := range m.positions {
		m.radius = max(m.radius, p.Sub(m.centroid).Len())
	}
}

// angle returns the angle between two vectors.
func angle(a, b mgl32.Vec3) float32 {
	if a.Len() == 0 || b.Len() == 0 {
		return 0
	}
	d := a.Normalize().Dot(b.Normalize())
	return float32(math.Acos(float64(mgl32.Clamp(d, -1, 1))))
}

// smoothNormals computes vertex normals as the sum of the
// normals of adjacent faces, weighted by face area and by
// the angle at the vertex.
func (m *Mesh) smoothNormals() {
	sum := make([]mgl32.Vec3, len(m.positions))
	for f := 0; f+2 < len(m.indices); f += 3 {
		i1, i2, i3 := m.indices[f], m.indices[f+1], m.indices[f+2]
		p1, p2, p3 := m.positions[i1], m.positions[i2], m.positions[i3]
		n := p2.Sub(p1).Cross(p3.Sub(p1))
		sum[i1] = sum[i1].Add(n.Mul(angle(p2.Sub(p1), p3.Sub(p1))))
		sum[i2] = sum[i2].Add(n.Mul(angle(p3.Sub(p2), p1.Sub(p2))))
		sum[i3] = sum[i3].Add(n.Mul(angle(p1.Sub(p3), p2.Sub(p3))))
	}
	for i, n := range sum {
		if n.Len() > 0 {
			m.normals[i] = n.Normalize()
		} else {
			m.normals[i] = mgl32.Vec3{}
		}
	}
}

// encode returns the bytes of s's buffer.
// m.mu must be held.
func (m *Mesh) encode(s Semantic) []byte {
	var data any
	switch s {
	case Position:
		data = m.positions
	case Normal:
		data = m.normals
	case TexCoord:
		data = m.texCoords
	case Color:
		data = m.colors
	case Index:
		data = m.indices
	}
	b, err := binary.Append(nil, binary.LittleEndian, data)
	if err != nil {
		panic(err)
	}
	return b
}

// createBuffers creates and fills the buffers of m.
// Index buffers and the vertex buffers of editable
// meshes are host visible and written directly. Other
// buffers are filled through staging.
func (m *Mesh) createBuffers() error {
	var bufs [numSemantic]driver.Buffer
	destroy := func() {
		for _, b := range bufs {
			if b != nil {
				b.Destroy()
			}
		}
	}
	var staged []Semantic
	for s := Position; s < numSemantic; s++ {
		visible := m.editable || s == Index
		n := int64(len(m.positions))
		if s == Index {
			n = int64(len(m.indices))
		}
		buf, err := m.e.gpu.NewBuffer(n*s.Stride(), visible, s.usage())
		if err != nil {
			destroy()
			return errors.Wrapf(err, meshPrefix+"%v buffer creation failed", s)
		}
		bufs[s] = buf
		if visible {
			copy(buf.Bytes(), m.encode(s))
		} else {
			staged = append(staged, s)
		}
	}
	if len(staged) > 0 {
		_, err := m.e.transfer(func(w *work, _ *Transfer) error {
			for _, s := range staged {
				if err := w.writeBuffer(bufs[s], 0, m.encode(s)); err != nil {
					return err
				}
			}
			return nil
		}, true)
		if err != nil {
			m.e.retire(destroy)
			return err
		}
	}
	m.bufs = bufs
	return nil
}

// CreateMesh creates a mesh from d.
// If param is nil, the mesh is not editable.
func (e *Engine) CreateMesh(name string, d *MeshData, param *MeshParam) (*Mesh, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errors.Wrap(ErrInvalidParam, meshPrefix+"nil data")
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	var p MeshParam
	if param != nil {
		p = *param
	}
	return e.meshes.create(name, false, func(id int) (*Mesh, error) {
		m := newMesh(d, p)
		m.e, m.id, m.name = e, id, name
		if err := m.createBuffers(); err != nil {
			return nil, err
		}
		return m, nil
	})
}

// Mesh returns the mesh identified by name.
func (e *Engine) Mesh(name string) (*Mesh, error) { return e.meshes.get(name) }

// MeshByID returns the mesh identified by id.
func (e *Engine) MeshByID(id int) (*Mesh, error) { return e.meshes.getID(id) }

// DeleteMesh deletes the mesh identified by name.
// It does nothing if no such mesh exists.
func (e *Engine) DeleteMesh(name string) error { return e.meshes.delete(name) }

// DeleteMeshByID deletes the mesh identified by id.
// It does nothing if no such mesh exists.
func (e *Engine) DeleteMeshByID(id int) error { return e.meshes.deleteID(id) }

// MeshCount returns the number of live meshes.
func (e *Engine) MeshCount() int { return e.meshes.len() }

// release implements resource.
func (m *Mesh) release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = true
	bufs := m.bufs
	m.bufs = [numSemantic]driver.Buffer{}
	m.e.retire(func() {
		for _, b := range bufs {
			if b != nil {
				b.Destroy()
			}
		}
	})
	return nil
}

// ID returns the mesh's id.
func (m *Mesh) ID() int { return m.id }

// Name returns the mesh's name.
func (m *Mesh) Name() string { return m.name }

// Editable returns whether m accepts Edit calls.
func (m *Mesh) Editable() bool { return m.editable }

// Len returns the number of vertices.
func (m *Mesh) Len() int { return len(m.positions) }

// IndexCount returns the number of indices.
func (m *Mesh) IndexCount() int { return len(m.indices) }

// Buffer returns the device buffer that stores s.
func (m *Mesh) Buffer(s Semantic) (driver.Buffer, error) {
	if s < 0 || s >= numSemantic {
		return nil, errors.Wrapf(ErrOutOfRange, meshPrefix+"semantic %d", s)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.deleted {
		return nil, errors.Wrapf(ErrNotFound, meshPrefix+"%q was deleted", m.name)
	}
	return m.bufs[s], nil
}

// Positions returns a copy of the vertex positions.
func (m *Mesh) Positions() []mgl32.Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]mgl32.Vec3(nil), m.positions...)
}

// Normals returns a copy of the vertex normals.
func (m *Mesh) Normals() []mgl32.Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]mgl32.Vec3(nil), m.normals...)
}

// TexCoords returns a copy of the vertex texture
// coordinates.
func (m *Mesh) TexCoords() []mgl32.Vec2 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]mgl32.Vec2(nil), m.texCoords...)
}

// Colors returns a copy of the vertex colors.
func (m *Mesh) Colors() []mgl32.Vec4 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]mgl32.Vec4(nil), m.colors...)
}

// Indices returns a copy of the indices.
func (m *Mesh) Indices() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]uint32(nil), m.indices...)
}

// Centroid returns the mean of the vertex positions.
func (m *Mesh) Centroid() mgl32.Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.centroid
}

// Radius returns the radius of the bounding sphere
// centered at Centroid.
func (m *Mesh) Radius() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.radius
}

// AABB returns the corners of the axis-aligned bounding
// box.
func (m *Mesh) AABB() (lo, hi mgl32.Vec3) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.aabbMin, m.aabbMax
}

// edit replaces elements [i, i+len(v)) of the slice
// selected by sel and of s's buffer.
func edit[V any](m *Mesh, s Semantic, sel func(*Mesh) []V, i int, v []V) error {
	if err := m.e.checkOpen(); err != nil {
		return err
	}
	if !m.editable {
		return errors.Wrapf(ErrEditNotAllowed, meshPrefix+"%q", m.name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted {
		return errors.Wrapf(ErrNotFound, meshPrefix+"%q was deleted", m.name)
	}
	dst := sel(m)
	switch {
	case i < 0 || i >= len(dst):
		return errors.Wrapf(ErrOutOfRange, meshPrefix+"index %d, max index is %d", i, len(dst)-1)
	case i+len(v) > len(dst):
		return errors.Wrapf(ErrOutOfRange, meshPrefix+"too many elements (%d) for index %d, max index is %d", len(v), i, len(dst)-1)
	}
	copy(dst[i:], v)
	if _, err := binary.Encode(m.bufs[s].Bytes()[int64(i)*s.Stride():], binary.LittleEndian, v); err != nil {
		return errors.Wrap(err, meshPrefix+"encoding failed")
	}
	if s == Position {
		m.computeMetadata()
		m.e.meshes.markDirty()
	}
	return nil
}

// EditPositions replaces the positions starting at i.
func (m *Mesh) EditPositions(i int, v []mgl32.Vec3) error {
	return edit(m, Position, func(m *Mesh) []mgl32.Vec3 { return m.positions }, i, v)
}

// EditNormals replaces the normals starting at i.
func (m *Mesh) EditNormals(i int, v []mgl32.Vec3) error {
	return edit(m, Normal, func(m *Mesh) []mgl32.Vec3 { return m.normals }, i, v)
}

// EditTexCoords replaces the texture coordinates starting
// at i.
func (m *Mesh) EditTexCoords(i int, v []mgl32.Vec2) error {
	return edit(m, TexCoord, func(m *Mesh) []mgl32.Vec2 { return m.texCoords }, i, v)
}

// EditColors replaces the colors starting at i.
func (m *Mesh) EditColors(i int, v []mgl32.Vec4) error {
	return edit(m, Color, func(m *Mesh) []mgl32.Vec4 { return m.colors }, i, v)
}

// ComputeSmoothNormals recomputes the vertex normals from
// the faces of m. If upload is set, the normal buffer is
// updated as well, which requires m to be editable.
func (m *Mesh) ComputeSmoothNormals(upload bool) error {
	if upload {
		if !m.editable {
			return errors.Wrapf(ErrEditNotAllowed, meshPrefix+"%q", m.name)
		}
		if err := m.e.checkOpen(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted {
		return errors.Wrapf(ErrNotFound, meshPrefix+"%q was deleted", m.name)
	}
	m.smoothNormals()
	if upload {
		copy(m.bufs[Normal].Bytes(), m.encode(Normal))
	}
	return nil
}

// Download reads s's buffer back from the device.
func (m *Mesh) Download(s Semantic) ([]byte, error) {
	buf, err := m.Buffer(s)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.e.downloadBuffer(buf, 0, buf.Cap(), true)
	if err != nil {
		return nil, err
	}
	return t.Wait()
}

// MeshRecord is the per-mesh entry of the array returned
// by Engine.MeshRecords.
type MeshRecord struct {
	Centroid mgl32.Vec3
	Radius   float32
	AABBMin  mgl32.Vec3
	Indices  uint32
	AABBMax  mgl32.Vec3
	_        float32
}

func meshRecord(m *Mesh) MeshRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MeshRecord{
		Centroid: m.centroid,
		Radius:   m.radius,
		AABBMin:  m.aabbMin,
		Indices:  uint32(len(m.indices)),
		AABBMax:  m.aabbMax,
	}
}
