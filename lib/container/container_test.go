package container

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"fleetrun/lib/core"
)

func TestAllocateUidStrictlyIncreasing(t *testing.T) {
	c := New()
	var prev core.Uid
	for i := 0; i < 100; i++ {
		uid := c.AllocateUid()
		if i > 0 {
			require.Greater(t, uid, prev)
		}
		prev = uid
	}
}

func TestAllocateUidConcurrentNeverDuplicates(t *testing.T) {
	c := New()
	const n = 500
	seen := make(chan core.Uid, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- c.AllocateUid()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[core.Uid]struct{}, n)
	for uid := range seen {
		_, dup := unique[uid]
		require.False(t, dup, "duplicate uid %d", uid)
		unique[uid] = struct{}{}
	}
	require.Len(t, unique, n)
}

func TestTakeIdleEmptyReturnsFalse(t *testing.T) {
	c := New()
	task, ok := c.TakeIdle()
	require.False(t, ok)
	require.Nil(t, task)
}

func TestTakeIdleIsLIFO(t *testing.T) {
	// three idle pushes of t1, t2, t3 followed by three takes yield
	// t3, t2, t1.
	c := New()
	t1 := c.NewTask(c.AllocateUid(), []byte("one"))
	t2 := c.NewTask(c.AllocateUid(), []byte("two"))
	t3 := c.NewTask(c.AllocateUid(), []byte("three"))

	c.PushIdle(t1)
	c.PushIdle(t2)
	c.PushIdle(t3)

	got1, ok := c.TakeIdle()
	require.True(t, ok)
	got2, ok := c.TakeIdle()
	require.True(t, ok)
	got3, ok := c.TakeIdle()
	require.True(t, ok)

	require.Equal(t, t3.Guid, got1.Guid)
	require.Equal(t, t2.Guid, got2.Guid)
	require.Equal(t, t1.Guid, got3.Guid)

	_, ok = c.TakeIdle()
	require.False(t, ok)
}

func TestPushSucceededAndDrain(t *testing.T) {
	c := New()
	task := c.NewTask(c.AllocateUid(), []byte("data"))
	task.Result = []byte("result")
	c.PushSucceeded(task)

	drained := c.DrainSucceeded()
	require.Len(t, drained, 1)
	require.Equal(t, task.Guid, drained[0].Guid)
	require.Equal(t, []byte("result"), drained[0].Result)
}

func TestDrainSucceededIsAtomicAndExhaustive(t *testing.T) {
	c := New()
	const n = 10
	for i := 0; i < n; i++ {
		task := c.NewTask(c.AllocateUid(), nil)
		task.Result = []byte{byte(i)}
		c.PushSucceeded(task)
	}

	drained := c.DrainSucceeded()
	require.Len(t, drained, n)

	// a second drain observes nothing: no task is returned twice.
	require.Empty(t, c.DrainSucceeded())
}

func TestRequeueProducesNoDuplicate(t *testing.T) {
	c := New()
	task := c.NewTask(c.AllocateUid(), []byte("data"))
	c.PushIdle(task)

	leased, ok := c.TakeIdle()
	require.True(t, ok)
	require.Equal(t, task.Guid, leased.Guid)

	// simulate a failed lease: requeue unchanged.
	c.PushIdle(leased)

	released, ok := c.TakeIdle()
	require.True(t, ok)
	require.Equal(t, task.Guid, released.Guid)
	_, ok = c.TakeIdle()
	require.False(t, ok)
}
