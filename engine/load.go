// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// TextureSource describes a texture to be created by
// LoadTextures.
type TextureSource struct {
	Name string
	// Decode produces the texture's parameters and
	// content. It runs on a worker goroutine.
	Decode func(ctx context.Context) (*TexParam, []byte, error)
}

// MeshSource describes a mesh to be created by
// LoadMeshes.
type MeshSource struct {
	Name   string
	Decode func(ctx context.Context) (*MeshData, *MeshParam, error)
}

// decodeAll runs decode for every index in [0, n) on at
// most workers goroutines. The first error cancels the
// remaining calls.
func decodeAll(ctx context.Context, n, workers int, decode func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return decode(ctx, i)
		})
	}
	return g.Wait()
}

// LoadTextures decodes every source concurrently and then
// creates the textures in order.
// Either every texture is created or none is: if any
// step fails, textures created by this call are deleted
// and the first error is returned.
func (e *Engine) LoadTextures(ctx context.Context, srcs []TextureSource) ([]*Texture, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	type decoded struct {
		param *TexParam
		data  []byte
	}
	dec := make([]decoded, len(srcs))
	err := decodeAll(ctx, len(srcs), e.cfg.Workers, func(ctx context.Context, i int) error {
		if srcs[i].Decode == nil {
			return errors.Wrapf(ErrInvalidParam, texPrefix+"%q has no decoder", srcs[i].Name)
		}
		p, data, err := srcs[i].Decode(ctx)
		if err != nil {
			return errors.Wrapf(err, texPrefix+"decoding %q", srcs[i].Name)
		}
		dec[i] = decoded{p, data}
		return nil
	})
	if err != nil {
		return nil, err
	}
	texs := make([]*Texture, 0, len(srcs))
	for i := range srcs {
		t, err := e.CreateTexture(srcs[i].Name, dec[i].param, dec[i].data)
		if err != nil {
			return nil, rollback(err, texs, e.DeleteTextureByID)
		}
		texs = append(texs, t)
	}
	e.log.WithField("count", len(texs)).Debug("textures loaded")
	return texs, nil
}

// LoadMeshes is the mesh counterpart of LoadTextures.
func (e *Engine) LoadMeshes(ctx context.Context, srcs []MeshSource) ([]*Mesh, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	type decoded struct {
		data  *MeshData
		param *MeshParam
	}
	dec := make([]decoded, len(srcs))
	err := decodeAll(ctx, len(srcs), e.cfg.Workers, func(ctx context.Context, i int) error {
		if srcs[i].Decode == nil {
			return errors.Wrapf(ErrInvalidParam, meshPrefix+"%q has no decoder", srcs[i].Name)
		}
		d, p, err := srcs[i].Decode(ctx)
		if err != nil {
			return errors.Wrapf(err, meshPrefix+"decoding %q", srcs[i].Name)
		}
		dec[i] = decoded{d, p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	meshes := make([]*Mesh, 0, len(srcs))
	for i := range srcs {
		m, err := e.CreateMesh(srcs[i].Name, dec[i].data, dec[i].param)
		if err != nil {
			return nil, rollback(err, meshes, e.DeleteMeshByID)
		}
		meshes = append(meshes, m)
	}
	e.log.WithField("count", len(meshes)).Debug("meshes loaded")
	return meshes, nil
}

// rollback deletes every resource in res, attaching any
// deletion failure to err.
func rollback[T interface{ ID() int }](err error, res []T, del func(id int) error) error {
	for _, r := range res {
		err = errors.CombineErrors(err, del(r.ID()))
	}
	return err
}
