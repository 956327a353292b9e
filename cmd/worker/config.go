package main

import (
	"errors"
	"strings"
	"time"

	"fleetrun/lib/runner"
	"fleetrun/lib/slog"
	"fleetrun/lib/worker"
)

const (
	defaultCoordinatorAddress = "127.0.0.1:4321"
	defaultCompilerPath       = "gcc"
	defaultCacheDir           = "."
	compilerArgsSep           = ","
)

// Config holds cmd/worker's command-line configuration.
type Config struct {
	CoordinatorAddress string
	CompilerPath       string
	CompilerArgs       []string
	CacheDir           string
	DialBackoff        time.Duration
}

func (c *Config) Validate() error {
	if c.CoordinatorAddress == "" {
		return errors.New("worker must be configured with a coordinator address")
	}
	if c.CompilerPath == "" {
		return errors.New("worker must be configured with a compiler path")
	}
	return nil
}

func (c *Config) toWorkerConfig(logger slog.Logger) worker.Config {
	return worker.Config{
		Logger:             logger,
		CoordinatorAddress: c.CoordinatorAddress,
		Compiler:           runner.Compiler{Path: c.CompilerPath, Args: c.CompilerArgs},
		CacheDir:           c.CacheDir,
		DialBackoff:        c.DialBackoff,
	}
}

func splitCompilerArgs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, compilerArgsSep)
}
