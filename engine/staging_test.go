// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/devres/driver"
)

func TestBucketSize(t *testing.T) {
	for _, x := range [...]struct{ n, want int64 }{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{255, 256},
		{256, 256},
		{257, 512},
		{1<<20 + 1, 1 << 21},
	} {
		if s := bucketSize(x.n); s != x.want {
			t.Fatalf("bucketSize(%d):\nhave %d\nwant %d", x.n, s, x.want)
		}
	}
}

func TestStagingPool(t *testing.T) {
	e := newTestEngine(t, nil)
	g := softGPU(t, e)
	p := newStagingPool(e.GPU(), 1000, 4096, 1, e.log)
	defer p.destroy()
	base := g.Stats().Buffers

	if p.min != 1024 || p.max != 4096 {
		t.Fatalf("newStagingPool: bounds\nhave %d, %d\nwant 1024, 4096", p.min, p.max)
	}
	if _, err := p.get(0); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("stagingPool.get(0):\nhave %v\nwant %v", err, ErrInvalidParam)
	}

	b1, err := p.get(10)
	if err != nil {
		t.Fatalf("stagingPool.get: unexpected error: %v", err)
	}
	if n := b1.Cap(); n != 1024 {
		t.Fatalf("stagingPool.get(10): Cap\nhave %d\nwant 1024", n)
	}
	if !b1.Visible() {
		t.Fatal("stagingPool.get: buffer not host visible")
	}
	p.put(b1)
	if n := p.idleLen(); n != 1 {
		t.Fatalf("stagingPool.idleLen:\nhave %d\nwant 1", n)
	}
	// Same bucket, same buffer.
	b2, _ := p.get(1024)
	if b2 != b1 {
		t.Fatal("stagingPool.get: idle buffer not reused")
	}
	// A different bucket allocates.
	b3, _ := p.get(2000)
	if b3 == b1 || b3.Cap() != 2048 {
		t.Fatalf("stagingPool.get(2000):\nhave %p (Cap %d)\nwant new buffer (Cap 2048)", b3, b3.Cap())
	}
	// Oversized requests are exact and never pooled.
	b4, _ := p.get(5000)
	if n := b4.Cap(); n != 5000 {
		t.Fatalf("stagingPool.get(5000): Cap\nhave %d\nwant 5000", n)
	}
	if n := g.Stats().Buffers - base; n != 3 {
		t.Fatalf("GPU.Stats: Buffers\nhave +%d\nwant +3", n)
	}
	p.put(b4)
	p.put(b3)
	p.put(b2)
	if n := p.idleLen(); n != 2 {
		t.Fatalf("stagingPool.idleLen:\nhave %d\nwant 2", n)
	}
	if n := g.Stats().Buffers - base; n != 2 {
		t.Fatalf("GPU.Stats: Buffers after put\nhave +%d\nwant +2", n)
	}

	// The idle limit is per bucket.
	c1, _ := p.get(1024)
	c2, _ := p.get(1024)
	p.put(c1)
	p.put(c2)
	if n := p.idleLen(); n != 2 {
		t.Fatalf("stagingPool.idleLen: over limit\nhave %d\nwant 2", n)
	}

	p.destroy()
	if n := g.Stats().Buffers - base; n != 0 {
		t.Fatalf("GPU.Stats: Buffers after destroy\nhave +%d\nwant 0", n)
	}
	if n := p.idleLen(); n != 0 {
		t.Fatalf("stagingPool.idleLen: after destroy\nhave %d\nwant 0", n)
	}
}

func TestStagingPutAfterDestroy(t *testing.T) {
	e := newTestEngine(t, nil)
	g := softGPU(t, e)
	p := newStagingPool(e.GPU(), 256, 4096, 4, e.log)
	base := g.Stats().Buffers
	b, err := p.get(512)
	if err != nil {
		t.Fatalf("stagingPool.get: unexpected error: %v", err)
	}
	p.destroy()
	p.put(b)
	if n := p.idleLen(); n != 0 {
		t.Fatalf("stagingPool.idleLen: put after destroy\nhave %d\nwant 0", n)
	}
	if n := g.Stats().Buffers - base; n != 0 {
		t.Fatalf("GPU.Stats: Buffers after put\nhave +%d\nwant 0", n)
	}
}

func TestStagingReuse(t *testing.T) {
	e := newTestEngine(t, nil)
	g := softGPU(t, e)
	tex, err := e.CreateTexture("T", &TexParam{PixelFmt: driver.RGBA8un, Width: 16, Height: 16, Editable: true}, make([]byte, 1024))
	if err != nil {
		t.Fatalf("Engine.CreateTexture: unexpected error: %v", err)
	}
	base := g.Stats().Buffers
	for range 8 {
		if err := tex.Upload(Region{}, make([]byte, 1024)); err != nil {
			t.Fatalf("Texture.Upload: unexpected error: %v", err)
		}
		if _, err := tex.Download(Region{}, nil); err != nil {
			t.Fatalf("Texture.Download: unexpected error: %v", err)
		}
	}
	if n := g.Stats().Buffers; n != base {
		t.Fatalf("GPU.Stats: Buffers after repeated transfers\nhave %d\nwant %d", n, base)
	}
}
