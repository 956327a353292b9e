// Package coordinator accepts worker connections, leases idle tasks,
// records results, and broadcasts termination. It does not compile or
// execute anything itself.
package coordinator

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fleetrun/lib/container"
	"fleetrun/lib/core"
	"fleetrun/lib/slog"
)

// ResultReadDeadline is the coordinator's only signal that a leased
// task's worker has gone missing: if no result arrives in time, the
// task is requeued.
const ResultReadDeadline = 120 * time.Second

// AcceptErrorCooldown is slept between listener.Accept errors to avoid
// a tight loop if the listener is persistently failing.
const AcceptErrorCooldown = time.Second

// Coordinator is embedded in the driver application. It owns the program
// source, the task container, the TCP listener, and the termination
// flag.
type Coordinator struct {
	Logger   slog.Logger
	Program  core.Program
	Listener net.Listener

	tasks          *container.TaskContainer
	terminated     atomic.Bool
	resultDeadline time.Duration
}

// New binds a TCP listener on listenAddress and starts its accept loop
// on a background goroutine. A bind failure is reported to the caller.
func New(logger slog.Logger, program []byte, listenAddress string) (*Coordinator, error) {
	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		Logger:         logger,
		Program:        core.Program(program),
		Listener:       listener,
		tasks:          container.New(),
		resultDeadline: ResultReadDeadline,
	}
	go c.acceptLoop()
	return c, nil
}

// Submit creates an idle task carrying data and returns its Uid.
func (c *Coordinator) Submit(data []byte) core.Uid {
	uid := c.tasks.AllocateUid()
	task := c.tasks.NewTask(uid, data)
	c.tasks.PushIdle(task)
	return uid
}

// Drain returns all currently succeeded tasks; it may return an empty
// slice.
func (c *Coordinator) Drain() []*core.Task {
	return c.tasks.DrainSucceeded()
}

// Terminate sets the termination flag. It is monotonic: once set, it is
// never cleared. Future polls receive core.CommandTerminate. Terminate is
// advisory — in-flight leases complete or time out normally.
func (c *Coordinator) Terminate() {
	c.terminated.Store(true)
}

// Terminated reports whether Terminate has been called.
func (c *Coordinator) Terminated() bool {
	return c.terminated.Load()
}

// acceptLoop is the background thread started by New. Accept errors are
// logged and the loop continues; it does not return.
func (c *Coordinator) acceptLoop() {
	for {
		conn, err := c.Listener.Accept()
		if err != nil {
			c.Logger.Error(&slog.LogRecord{Msg: "listener.Accept error", Error: err})
			time.Sleep(AcceptErrorCooldown)
			continue
		}
		connID := uuid.New()
		c.handleConnection(connID, conn)
	}
}
