package coordinator

import (
	"net"
	"time"

	"github.com/google/uuid"

	"fleetrun/lib/core"
	"fleetrun/lib/slog"
	"fleetrun/lib/wire"
)

// handleConnection implements the per-connection decision and dispatch
// sequence: check termination, else take an idle task, else reply Wait.
// That decision is a short, lock-bounded operation performed
// synchronously so the accept loop is never blocked by it. The
// program/data send and result receive run on a fresh background
// goroutine so a slow or stuck worker cannot stall subsequent accepts.
func (c *Coordinator) handleConnection(connID uuid.UUID, conn net.Conn) {
	if c.Terminated() {
		c.writeCommandAndClose(connID, conn, core.CommandTerminate, nil)
		return
	}

	task, ok := c.tasks.TakeIdle()
	if !ok {
		c.writeCommandAndClose(connID, conn, core.CommandWait, nil)
		return
	}

	if err := wire.WriteCommand(conn, core.CommandExecute); err != nil {
		c.Logger.Warn(&slog.LogRecord{Msg: "failed to send Execute command, requeuing", Error: err, ConnID: connID, TaskUID: &task.Uid})
		_ = conn.Close()
		c.tasks.PushIdle(task)
		return
	}

	go c.dispatch(connID, conn, task)
}

// writeCommandAndClose sends a single unframed command byte (Wait or
// Terminate) and closes the connection. Neither command carries further
// data, so this runs synchronously on the accept path without risking a
// stall: both are single small writes.
func (c *Coordinator) writeCommandAndClose(connID uuid.UUID, conn net.Conn, cmd core.Command, task *core.Task) {
	defer func() { _ = conn.Close() }()
	if err := wire.WriteCommand(conn, cmd); err != nil {
		c.Logger.Warn(&slog.LogRecord{Msg: "failed to send command", Error: err, ConnID: connID, Command: &cmd})
	}
}

// dispatch sends the program and task data, then waits (bounded by
// ResultReadDeadline) for the result frame. On any I/O error, timeout, or
// short read, task is pushed back to idle unchanged; a leased task is
// never dropped.
func (c *Coordinator) dispatch(connID uuid.UUID, conn net.Conn, task *core.Task) {
	defer func() { _ = conn.Close() }()

	if err := wire.WriteFrame(conn, c.Program); err != nil {
		c.requeue(connID, conn, task, "failed to send program", err)
		return
	}
	if err := wire.WriteFrame(conn, task.Data); err != nil {
		c.requeue(connID, conn, task, "failed to send task data", err)
		return
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.resultDeadline)); err != nil {
		c.requeue(connID, conn, task, "failed to set read deadline", err)
		return
	}

	result, err := wire.ReadFrame(conn)
	if err != nil {
		c.requeue(connID, conn, task, "failed to read result, requeuing", err)
		return
	}

	task.Result = result
	c.tasks.PushSucceeded(task)
	c.Logger.Info(&slog.LogRecord{Msg: "task succeeded", ConnID: connID, TaskUID: &task.Uid, TaskGuid: &task.Guid})
}

func (c *Coordinator) requeue(connID uuid.UUID, conn net.Conn, task *core.Task, msg string, err error) {
	c.Logger.Warn(&slog.LogRecord{Msg: msg, Error: err, ConnID: connID, TaskUID: &task.Uid, TaskGuid: &task.Guid})
	c.tasks.PushIdle(task)
}
