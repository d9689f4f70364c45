// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package engine

import (
	// Registers the software driver, which is always
	// available. Hardware drivers register themselves
	// when imported by the application.
	_ "github.com/gviegas/devres/driver/soft"
)
