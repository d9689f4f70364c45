// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/cockroachdb/errors"
)

// Errors returned by the engine.
// Call sites wrap these with context, so callers must
// compare using errors.Is.
var (
	// ErrDuplicateName means that a live resource already
	// uses the requested name.
	ErrDuplicateName = errors.New("engine: duplicate name")

	// ErrNotFound means that no live resource matches the
	// given name or id.
	ErrNotFound = errors.New("engine: resource not found")

	// ErrNotReady means that the resource exists but its
	// content is still being built.
	ErrNotReady = errors.New("engine: resource not ready")

	// ErrCapacityExceeded means that a table has no free
	// slots left.
	ErrCapacityExceeded = errors.New("engine: capacity exceeded")

	// ErrSizeMismatch means that the data provided is
	// smaller than what the destination requires.
	ErrSizeMismatch = errors.New("engine: size mismatch")

	// ErrOutOfRange means that an index or region lies
	// outside the resource.
	ErrOutOfRange = errors.New("engine: out of range")

	// ErrEditNotAllowed means that the resource was not
	// created as editable.
	ErrEditNotAllowed = errors.New("engine: edit not allowed")

	// ErrUnsupportedFormat means that the operation does
	// not support the resource's pixel format.
	ErrUnsupportedFormat = errors.New("engine: unsupported format")

	// ErrDeviceNotInitialized means that the engine has no
	// open device (e.g., it was closed).
	ErrDeviceNotInitialized = errors.New("engine: device not initialized")

	// ErrDeviceTimeout means that the device did not
	// signal completion within Config.FenceTimeout.
	ErrDeviceTimeout = errors.New("engine: device timeout")

	// ErrInvalidParam means that creation parameters are
	// not valid.
	ErrInvalidParam = errors.New("engine: invalid parameter")
)
