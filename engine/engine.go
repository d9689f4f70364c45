// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine manages GPU-resident resources.
//
// An Engine keeps bounded registries of named textures
// and meshes, moves their content between host and
// device memory through pooled staging buffers, tracks
// the layout of every image subresource and batches the
// recorded device work in a Scheduler.
//
// Device work is recorded by whichever goroutine calls
// into the engine, but reaches the device only through
// the scheduler. Operations that must observe the result
// (synchronous uploads and downloads, factories) submit
// the queue and wait for completion themselves.
package engine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/gviegas/devres/driver"
	"github.com/gviegas/devres/engine/internal/ctxt"
)

const (
	dflMaxTexture     = 1024
	dflMaxMesh        = 1024
	dflFenceTimeout   = 100 * time.Second
	dflMinStaging     = 64 << 10
	dflMaxStaging     = 64 << 20
	dflMaxIdleStaging = 2
	dflLogLevel       = "info"
)

// Config is used to configure an Engine.
type Config struct {
	// Name of the driver to use. Any driver whose name
	// contains this string (case insensitive) can be
	// selected.
	//
	// Default is "" (any driver).
	Driver string

	// The maximum number of live textures.
	//
	// Default is 1024.
	MaxTexture int

	// The maximum number of live meshes.
	//
	// Default is 1024.
	MaxMesh int

	// How long to wait for the device to complete an
	// operation before giving up with ErrDeviceTimeout.
	//
	// Default is 100s.
	FenceTimeout time.Duration

	// The smallest staging buffer size in bytes.
	// Staging buffers are allocated in power-of-two
	// sizes from MinStaging to MaxStaging.
	//
	// Default is 65536 bytes (64KiB).
	MinStaging int64

	// The largest pooled staging buffer size in bytes.
	// Larger transfers use a dedicated buffer.
	//
	// Default is 67108864 bytes (64MiB).
	MaxStaging int64

	// The maximum number of idle staging buffers kept
	// per size.
	//
	// Default is 2.
	MaxIdleStaging int

	// The number of goroutines that decode content in
	// LoadTextures and LoadMeshes.
	//
	// Default is runtime.GOMAXPROCS(0).
	Workers int

	// Log level, as understood by logrus.ParseLevel.
	// Ignored if Logger is set.
	//
	// Default is "info".
	LogLevel string

	// Logger to use. If nil, a new logger writing to
	// standard error is created.
	Logger *logrus.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxTexture:     dflMaxTexture,
		MaxMesh:        dflMaxMesh,
		FenceTimeout:   dflFenceTimeout,
		MinStaging:     dflMinStaging,
		MaxStaging:     dflMaxStaging,
		MaxIdleStaging: dflMaxIdleStaging,
		Workers:        runtime.GOMAXPROCS(0),
		LogLevel:       dflLogLevel,
	}
}

// validate replaces unset fields with defaults.
func (c *Config) validate() error {
	dfl := DefaultConfig()
	switch {
	case c.MaxTexture < 0, c.MaxMesh < 0, c.FenceTimeout < 0,
		c.MinStaging < 0, c.MaxStaging < 0, c.MaxIdleStaging < 0, c.Workers < 0:
		return errors.Wrap(ErrInvalidParam, "negative configuration value")
	}
	if c.MaxTexture == 0 {
		c.MaxTexture = dfl.MaxTexture
	}
	if c.MaxMesh == 0 {
		c.MaxMesh = dfl.MaxMesh
	}
	if c.FenceTimeout == 0 {
		c.FenceTimeout = dfl.FenceTimeout
	}
	if c.MinStaging == 0 {
		c.MinStaging = dfl.MinStaging
	}
	if c.MaxStaging == 0 {
		c.MaxStaging = dfl.MaxStaging
	}
	if c.MaxIdleStaging == 0 {
		c.MaxIdleStaging = dfl.MaxIdleStaging
	}
	if c.Workers == 0 {
		c.Workers = dfl.Workers
	}
	if c.Logger == nil {
		if c.LogLevel == "" {
			c.LogLevel = dfl.LogLevel
		}
		lvl, err := logrus.ParseLevel(c.LogLevel)
		if err != nil {
			return errors.Wrap(ErrInvalidParam, err.Error())
		}
		c.Logger = logrus.New()
		c.Logger.SetLevel(lvl)
	}
	return nil
}

// Engine owns the device resources of an application.
type Engine struct {
	cfg    Config
	log    *logrus.Entry
	gpu    driver.GPU
	sched  *Scheduler
	pool   *stagingPool
	closed atomic.Bool

	// recMu serializes recording of engine work.
	recMu sync.Mutex
	// pending counts work that was created but not
	// freed yet.
	pending atomic.Int64

	textures *table[*Texture]
	meshes   *table[*Mesh]
	texRecs  *mirror[TextureRecord]
	meshRecs *mirror[MeshRecord]
}

// New creates a new Engine.
// If config is nil, DefaultConfig is used.
func New(config *Config) (*Engine, error) {
	var cfg Config
	if config == nil {
		cfg = DefaultConfig()
	} else {
		cfg = *config
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	gpu, err := ctxt.Open(cfg.Driver)
	if err != nil {
		return nil, errors.Wrap(ErrDeviceNotInitialized, err.Error())
	}
	l := cfg.Logger.WithField("driver", ctxt.Driver().Name())
	e := &Engine{
		cfg:      cfg,
		log:      l,
		gpu:      gpu,
		sched:    newScheduler(gpu, cfg.FenceTimeout, l),
		pool:     newStagingPool(gpu, cfg.MinStaging, cfg.MaxStaging, cfg.MaxIdleStaging, l),
		textures: newTable[*Texture]("texture", cfg.MaxTexture, l),
		meshes:   newTable[*Mesh]("mesh", cfg.MaxMesh, l),
	}
	if e.texRecs, err = newMirror[TextureRecord](e, e.textures, textureRecord); err == nil {
		e.meshRecs, err = newMirror[MeshRecord](e, e.meshes, meshRecord)
	}
	if err != nil {
		if e.texRecs != nil {
			e.texRecs.destroy()
		}
		ctxt.Close()
		return nil, err
	}
	l.WithFields(logrus.Fields{
		"max_texture": cfg.MaxTexture,
		"max_mesh":    cfg.MaxMesh,
	}).Info("engine created")
	return e, nil
}

// checkOpen returns an error wrapping
// ErrDeviceNotInitialized if e was closed.
func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return errors.Wrap(ErrDeviceNotInitialized, "engine closed")
	}
	return nil
}

// Config returns the configuration in use.
func (e *Engine) Config() Config { return e.cfg }

// GPU returns the device used by e.
func (e *Engine) GPU() driver.GPU { return e.gpu }

// Scheduler returns the scheduler used by e.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// Flush republishes stale record arrays, submits all
// queued work, runs queued present work and releases
// temporaries that the device is done with.
// It is meant to be called once per frame.
func (e *Engine) Flush() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	err := errors.CombineErrors(e.texRecs.republish(false), e.meshRecs.republish(false))
	err = errors.CombineErrors(err, e.sched.SubmitAll())
	err = errors.CombineErrors(err, e.sched.PresentAll())
	e.sched.reclaim()
	return err
}

// Sync submits all queued work and waits until the
// device is done with every parked temporary.
func (e *Engine) Sync() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	err := e.sched.SubmitAll()
	return errors.CombineErrors(err, e.sched.drain(e.cfg.FenceTimeout))
}

// Close deletes every resource and releases the device.
// Work still queued is submitted first.
// e must not be used after Close.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := e.sched.SubmitAll()
	err = errors.CombineErrors(err, e.textures.clear())
	err = errors.CombineErrors(err, e.meshes.clear())
	err = errors.CombineErrors(err, e.sched.SubmitAll())
	err = errors.CombineErrors(err, e.sched.PresentAll())
	err = errors.CombineErrors(err, e.sched.drain(e.cfg.FenceTimeout))
	e.texRecs.destroy()
	e.meshRecs.destroy()
	e.pool.destroy()
	ctxt.Close()
	e.log.Info("engine closed")
	return err
}
