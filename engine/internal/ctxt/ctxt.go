// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package ctxt provides the GPU driver used by engines.
// The driver is opened by the first call to Open and
// closed when every Open has been matched by a Close.
package ctxt

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gviegas/devres/driver"
)

var (
	mu     sync.Mutex
	refs   int
	drv    driver.Driver
	gpu    driver.GPU
	limits driver.Limits
)

// ErrNoDriver means that no registered driver matched
// the requested name or could be opened.
var ErrNoDriver = errors.New("ctxt: driver not found")

// loadDriver attempts to load any driver whose name
// contains the name string. It is case insensitive.
// If name is the empty string, then all registered
// drivers are considered.
// It assumes that the drv and gpu vars hold invalid
// values and replaces both on success.
// The limits var is queried from the new gpu.
func loadDriver(name string) error {
	drivers := driver.Drivers()
	err := ErrNoDriver
	name = strings.ToLower(name)
	for i := range drivers {
		if !strings.Contains(strings.ToLower(drivers[i].Name()), name) {
			continue
		}
		var u driver.GPU
		if u, err = drivers[i].Open(); err != nil {
			log.WithError(err).WithField("driver", drivers[i].Name()).Warn("driver failed to open")
			continue
		}
		drv = drivers[i]
		gpu = u
		limits = gpu.Limits()
		return nil
	}
	return errors.Wrapf(err, "ctxt: loading driver %q", name)
}

// Open returns the shared GPU, loading a driver whose
// name matches name if no driver is loaded yet.
// A name that does not match the loaded driver is an
// error.
func Open(name string) (driver.GPU, error) {
	mu.Lock()
	defer mu.Unlock()
	if refs == 0 {
		if err := loadDriver(name); err != nil {
			return nil, err
		}
	} else if !strings.Contains(strings.ToLower(drv.Name()), strings.ToLower(name)) {
		return nil, errors.Newf("ctxt: driver %q already loaded, cannot load %q", drv.Name(), name)
	}
	refs++
	return gpu, nil
}

// Close releases a reference obtained from Open.
// The driver is closed when the last reference is
// released.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	switch refs {
	case 0:
		return
	case 1:
		drv.Close()
		drv, gpu, limits = nil, nil, driver.Limits{}
	}
	refs--
}

// Driver returns the loaded driver.Driver.
func Driver() driver.Driver {
	mu.Lock()
	defer mu.Unlock()
	return drv
}

// Limits returns the Limits of the GPU returned by Open.
// This value is retrieved only once per load.
func Limits() driver.Limits {
	mu.Lock()
	defer mu.Unlock()
	return limits
}
