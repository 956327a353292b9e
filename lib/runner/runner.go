// Package runner wraps the two subprocess invocations a worker performs:
// compiling the program source with the local toolchain, and executing
// the resulting binary against one task's data. Both are treated as
// black-box subprocesses: runner only cares about exit codes and
// captured bytes.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"fleetrun/lib/core"
	"fleetrun/lib/wire"
)

// ErrCompileFailed is returned when the compiler subprocess exits nonzero
// or fails to spawn.
var ErrCompileFailed = errors.New("runner: compilation failed")

// ErrExecuteFailed is returned when the compiled program exits nonzero.
var ErrExecuteFailed = errors.New("runner: execution failed")

// Compiler invokes a local toolchain, translating program source bytes
// into an executable at outputPath.
type Compiler struct {
	// Path is the compiler binary, e.g. "gcc" or "cc".
	Path string
	// Args is appended after the fixed "-o outputPath" arguments, e.g.
	// []string{"-xc", "-"} to read a C program from stdin.
	Args []string
}

// Compile invokes the compiler with stdin set to program, writing its
// output to outputPath. A nonzero exit or a spawn error returns
// ErrCompileFailed wrapping the underlying cause; the caller is
// responsible for deleting outputPath in that case.
func (c Compiler) Compile(ctx context.Context, program core.Program, outputPath string) error {
	args := append([]string{"-o", outputPath}, c.Args...)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stdin = bytes.NewReader(program)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrCompileFailed, c.Path, firstLine(stderr.Bytes(), err))
	}
	return nil
}

// Execute spawns executablePath with piped stdin/stdout, writes the
// framed data (8-byte LE length followed by data) to its stdin, closes
// stdin, waits for exit, and captures all of stdout as the result. A
// nonzero exit returns
// ErrExecuteFailed; the caller is responsible for evicting the cache
// entry and deleting the binary in that case.
func Execute(ctx context.Context, executablePath string, data []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, executablePath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("runner: stdin pipe: %w", err)
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrExecuteFailed, executablePath, err)
	}

	writeErr := wire.WriteFrame(stdin, data)
	closeErr := stdin.Close()

	waitErr := cmd.Wait()

	switch {
	case waitErr != nil:
		return nil, fmt.Errorf("%w: %s: %s", ErrExecuteFailed, executablePath, firstLine(stderr.Bytes(), waitErr))
	case writeErr != nil:
		return nil, fmt.Errorf("%w: writing framed stdin: %v", ErrExecuteFailed, writeErr)
	case closeErr != nil:
		return nil, fmt.Errorf("%w: closing stdin: %v", ErrExecuteFailed, closeErr)
	}

	out := make([]byte, stdout.Len())
	copy(out, stdout.Bytes())
	return out, nil
}

func firstLine(stderr []byte, err error) string {
	if len(stderr) == 0 {
		return err.Error()
	}
	idx := bytes.IndexByte(stderr, '\n')
	if idx < 0 {
		idx = len(stderr)
	}
	line := string(stderr[:idx])
	if line == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s (%v)", line, err)
}
