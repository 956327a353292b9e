// Package worker dials the coordinator, obeys one command per
// connection, maintains a local compiled-program cache, and exits when
// told to terminate.
package worker

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"fleetrun/lib/compilecache"
	"fleetrun/lib/core"
	liberrors "fleetrun/lib/errors"
	"fleetrun/lib/runner"
	"fleetrun/lib/slog"
	"fleetrun/lib/wire"
)

// DialBackoff is slept between failed dial attempts, avoiding a tight
// reconnect loop hammering an unreachable coordinator.
const DialBackoff = 500 * time.Millisecond

// Config configures a Worker.
type Config struct {
	Logger             slog.Logger
	CoordinatorAddress string
	Compiler           runner.Compiler
	CacheDir           string
	DialBackoff        time.Duration
}

// Worker drives the coordinator's protocol on a single goroutine: one
// outstanding connection at a time.
type Worker struct {
	cfg   Config
	cache *compilecache.Cache
}

// New constructs a Worker with a fresh, empty CompileCache.
func New(cfg Config) *Worker {
	if cfg.DialBackoff == 0 {
		cfg.DialBackoff = DialBackoff
	}
	return &Worker{
		cfg:   cfg,
		cache: compilecache.New(cfg.CacheDir),
	}
}

// Run executes the main loop until ctx is cancelled or a Terminate
// command is received. After the loop exits, it removes every file
// referenced by the cache and returns any cleanup errors encountered,
// bundled together.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return w.shutdown()
		default:
		}

		conn, err := net.Dial("tcp", w.cfg.CoordinatorAddress)
		if err != nil {
			w.cfg.Logger.Warn(&slog.LogRecord{Msg: "dial coordinator failed", Error: err})
			if !sleepOrDone(ctx, w.cfg.DialBackoff) {
				return w.shutdown()
			}
			continue
		}

		terminate := w.handleConnection(ctx, conn)
		if terminate {
			return w.shutdown()
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// handleConnection drives a single connection to completion and reports
// whether the worker should terminate.
func (w *Worker) handleConnection(ctx context.Context, conn net.Conn) (terminate bool) {
	connID := uuid.New()
	defer func() { _ = conn.Close() }()
	// Closing the connection when ctx is cancelled unblocks a pending read
	// or write, so Run observes the cancellation.
	stopWatch := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopWatch()

	cmd, err := wire.ReadCommand(conn)
	if err != nil {
		w.cfg.Logger.Warn(&slog.LogRecord{Msg: "error reading command from coordinator", Error: err, ConnID: connID})
		return false
	}

	switch cmd {
	case core.CommandWait:
		return false
	case core.CommandTerminate:
		w.cfg.Logger.Info(&slog.LogRecord{Msg: "received Terminate, shutting down", ConnID: connID})
		return true
	case core.CommandExecute:
		w.execute(ctx, connID, conn)
		return false
	default:
		w.cfg.Logger.Warn(&slog.LogRecord{Msg: "invalid command byte received", ConnID: connID})
		return false
	}
}

// execute reads the program and data frames, compiles or hits the
// cache, runs the program, and writes the result frame. Any error along
// the way is logged and the connection is left to close without a
// result — the coordinator's read deadline will requeue the task. A
// failed compile caches nothing; a failed run or result write evicts the
// cache entry for this program and deletes its executable.
func (w *Worker) execute(ctx context.Context, connID uuid.UUID, conn net.Conn) {
	program, err := wire.ReadFrame(conn)
	if err != nil {
		w.cfg.Logger.Warn(&slog.LogRecord{Msg: "error reading program frame", Error: err, ConnID: connID})
		return
	}
	data, err := wire.ReadFrame(conn)
	if err != nil {
		w.cfg.Logger.Warn(&slog.LogRecord{Msg: "error reading data frame", Error: err, ConnID: connID})
		return
	}

	path, err := w.compileOrCacheHit(ctx, program)
	if err != nil {
		w.cfg.Logger.Warn(&slog.LogRecord{Msg: "compilation failed", Error: err, ConnID: connID})
		return
	}

	result, err := runner.Execute(ctx, path, data)
	if err != nil {
		w.cfg.Logger.Warn(&slog.LogRecord{Msg: "execution failed, evicting cache entry", Error: err, ConnID: connID})
		w.evictAndDelete(program, path)
		return
	}

	if err := wire.WriteFrame(conn, result); err != nil {
		w.cfg.Logger.Warn(&slog.LogRecord{Msg: "error writing result frame, evicting cache entry", Error: err, ConnID: connID})
		w.evictAndDelete(program, path)
		return
	}
}

// compileOrCacheHit returns the cached executable path for program, or
// compiles it fresh via an atomically-probed output path on miss.
func (w *Worker) compileOrCacheHit(ctx context.Context, program []byte) (string, error) {
	if path, hit := w.cache.Lookup(program); hit {
		return path, nil
	}

	path, err := w.cache.ProbeFreshPath()
	if err != nil {
		return "", err
	}
	if err := w.cfg.Compiler.Compile(ctx, core.Program(program), path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	w.cache.Insert(program, path)
	return path, nil
}

func (w *Worker) evictAndDelete(program []byte, path string) {
	w.cache.Evict(program)
	_ = os.Remove(path)
}

// shutdown removes every file referenced by the cache and clears its
// bookkeeping.
func (w *Worker) shutdown() error {
	paths := w.cache.AllPaths()
	errChan := make(chan error, len(paths))
	for _, path := range paths {
		err := os.Remove(path)
		if err != nil && os.IsNotExist(err) {
			err = nil
		}
		errChan <- err
	}
	close(errChan)
	w.cache.Clear()
	return liberrors.AggregateErrorFromChannel(errChan)
}
