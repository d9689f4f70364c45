// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// Environment variables read by LoadConfig.
const (
	EnvDriver         = "DEVRES_DRIVER"
	EnvMaxTexture     = "DEVRES_MAX_TEXTURE"
	EnvMaxMesh        = "DEVRES_MAX_MESH"
	EnvFenceTimeout   = "DEVRES_FENCE_TIMEOUT"
	EnvMinStaging     = "DEVRES_MIN_STAGING"
	EnvMaxStaging     = "DEVRES_MAX_STAGING"
	EnvMaxIdleStaging = "DEVRES_MAX_IDLE_STAGING"
	EnvWorkers        = "DEVRES_WORKERS"
	EnvLogLevel       = "DEVRES_LOG_LEVEL"
)

// LoadConfig returns DefaultConfig overlaid with values
// from a dotenv file and then from the process
// environment.
// If path is empty, only the environment is consulted.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	vars := make(map[string]string)
	if path != "" {
		m, err := godotenv.Read(path)
		switch {
		case err == nil:
			vars = m
		case !os.IsNotExist(err):
			return Config{}, errors.Wrapf(err, "reading %s", path)
		}
	}
	for _, k := range [...]string{
		EnvDriver, EnvMaxTexture, EnvMaxMesh, EnvFenceTimeout, EnvMinStaging,
		EnvMaxStaging, EnvMaxIdleStaging, EnvWorkers, EnvLogLevel,
	} {
		if v, ok := os.LookupEnv(k); ok {
			vars[k] = v
		}
	}
	cfg := DefaultConfig()
	if err := cfg.apply(vars); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// apply sets the fields of c named in vars.
func (c *Config) apply(vars map[string]string) (err error) {
	setInt := func(key string, dst *int) {
		if v, ok := vars[key]; ok && err == nil {
			var n int
			if n, err = strconv.Atoi(v); err != nil {
				err = errors.Wrapf(ErrInvalidParam, "%s=%q", key, v)
				return
			}
			*dst = n
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v, ok := vars[key]; ok && err == nil {
			var n int64
			if n, err = strconv.ParseInt(v, 10, 64); err != nil {
				err = errors.Wrapf(ErrInvalidParam, "%s=%q", key, v)
				return
			}
			*dst = n
		}
	}
	if v, ok := vars[EnvDriver]; ok {
		c.Driver = v
	}
	if v, ok := vars[EnvLogLevel]; ok {
		c.LogLevel = v
	}
	setInt(EnvMaxTexture, &c.MaxTexture)
	setInt(EnvMaxMesh, &c.MaxMesh)
	setInt(EnvMaxIdleStaging, &c.MaxIdleStaging)
	setInt(EnvWorkers, &c.Workers)
	setInt64(EnvMinStaging, &c.MinStaging)
	setInt64(EnvMaxStaging, &c.MaxStaging)
	if v, ok := vars[EnvFenceTimeout]; ok && err == nil {
		var d time.Duration
		if d, err = time.ParseDuration(v); err != nil {
			err = errors.Wrapf(ErrInvalidParam, "%s=%q", EnvFenceTimeout, v)
		} else {
			c.FenceTimeout = d
		}
	}
	return
}
