package main

import (
	"errors"
	"fmt"
)

const (
	defaultListenAddress = "0.0.0.0:4321"
	defaultNumTasks      = 4
)

// Config holds cmd/dispatchd's command-line configuration: the file to
// scan, the character to count within it, how many tasks to split the
// work into, the program source compiled by workers, and the address
// workers dial.
type Config struct {
	InputFile     string
	ProgramFile   string
	TargetChar    string
	NumTasks      int
	ListenAddress string
}

func (c *Config) Validate() error {
	if c.InputFile == "" {
		return errors.New("dispatchd must be configured with an input file")
	}
	if c.ProgramFile == "" {
		return errors.New("dispatchd must be configured with a program file")
	}
	if len(c.TargetChar) != 1 {
		return fmt.Errorf("target character must be exactly one byte, got %q", c.TargetChar)
	}
	if c.NumTasks < 1 {
		return errors.New("num-tasks must be at least 1")
	}
	return nil
}
