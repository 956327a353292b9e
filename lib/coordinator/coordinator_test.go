package coordinator

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleetrun/lib/core"
	"fleetrun/lib/slog"
	"fleetrun/lib/wire"
)

func newTestCoordinator(t *testing.T, program []byte) *Coordinator {
	t.Helper()
	c, err := New(&slog.RecordingLogger{}, program, "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Listener.Close() })
	return c
}

func dial(t *testing.T, c *Coordinator) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", c.Listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEmptyIdlePollReceivesWait(t *testing.T) {
	c := newTestCoordinator(t, []byte("prog"))
	conn := dial(t, c)

	cmd, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.Equal(t, core.CommandWait, cmd)

	require.Empty(t, c.Drain())
}

func TestSubmitThenPollReceivesExecuteAndProgram(t *testing.T) {
	program := []byte("the-program-bytes")
	c := newTestCoordinator(t, program)
	c.Submit([]byte("task-data"))

	conn := dial(t, c)
	cmd, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.Equal(t, core.CommandExecute, cmd)

	gotProgram, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, program, gotProgram)

	gotData, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, []byte("task-data"), gotData)
}

func TestFullRoundTripSucceeds(t *testing.T) {
	c := newTestCoordinator(t, []byte("prog"))
	uid := c.Submit([]byte("data"))

	conn := dial(t, c)
	cmd, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.Equal(t, core.CommandExecute, cmd)

	_, err = wire.ReadFrame(conn) // program
	require.NoError(t, err)
	_, err = wire.ReadFrame(conn) // data
	require.NoError(t, err)

	require.NoError(t, wire.WriteFrame(conn, []byte("the-result")))

	var drained []*core.Task
	require.Eventually(t, func() bool {
		drained = c.Drain()
		return len(drained) > 0
	}, time.Second, 5*time.Millisecond)

	require.Len(t, drained, 1)
	require.Equal(t, uid, drained[0].Uid)
	require.Equal(t, []byte("the-result"), drained[0].Result)
}

func TestWorkerDisconnectMidTransferRequeues(t *testing.T) {
	c := newTestCoordinator(t, []byte("prog"))
	c.Submit([]byte("data"))

	conn := dial(t, c)
	cmd, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.Equal(t, core.CommandExecute, cmd)

	// disconnect without reading program/data or sending a result.
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		conn2 := dial(t, c)
		cmd2, err := wire.ReadCommand(conn2)
		return err == nil && cmd2 == core.CommandExecute
	}, time.Second, 5*time.Millisecond)
}

func TestResultReadTimeoutRequeues(t *testing.T) {
	c := newTestCoordinator(t, []byte("prog"))
	c.resultDeadline = 20 * time.Millisecond
	c.Submit([]byte("data"))

	conn := dial(t, c)
	cmd, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.Equal(t, core.CommandExecute, cmd)
	_, err = wire.ReadFrame(conn)
	require.NoError(t, err)
	_, err = wire.ReadFrame(conn)
	require.NoError(t, err)
	// never send a result: the deadline should fire and requeue.

	require.Eventually(t, func() bool {
		conn2 := dial(t, c)
		cmd2, err := wire.ReadCommand(conn2)
		return err == nil && cmd2 == core.CommandExecute
	}, time.Second, 5*time.Millisecond)
}

func TestTerminateBroadcastsToSubsequentPolls(t *testing.T) {
	c := newTestCoordinator(t, []byte("prog"))
	c.Terminate()

	for i := 0; i < 3; i++ {
		conn := dial(t, c)
		cmd, err := wire.ReadCommand(conn)
		require.NoError(t, err)
		require.Equal(t, core.CommandTerminate, cmd)
	}
}

func TestTerminateTakesPriorityOverIdleTasks(t *testing.T) {
	c := newTestCoordinator(t, []byte("prog"))
	c.Submit([]byte("data"))
	c.Terminate()

	conn := dial(t, c)
	cmd, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.Equal(t, core.CommandTerminate, cmd)
}

func TestConservationNoTaskObservedTwiceInSucceeded(t *testing.T) {
	c := newTestCoordinator(t, []byte("prog"))
	c.Submit([]byte("data"))

	conn := dial(t, c)
	cmd, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.Equal(t, core.CommandExecute, cmd)
	_, err = wire.ReadFrame(conn)
	require.NoError(t, err)
	_, err = wire.ReadFrame(conn)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, []byte("result")))

	var drained []*core.Task
	require.Eventually(t, func() bool {
		drained = c.Drain()
		return len(drained) > 0
	}, time.Second, 5*time.Millisecond)
	require.Len(t, drained, 1)

	// a second drain must never observe the same task again.
	require.Empty(t, c.Drain())
}
