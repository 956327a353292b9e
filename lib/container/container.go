// Package container implements TaskContainer, the sole source of truth
// for task state on the coordinator: the idle, in-flight, and succeeded
// sets.
package container

import (
	"sync"

	"fleetrun/lib/core"
)

// TaskContainer owns the idle and succeeded sets. The in-flight set is
// implicit: a task leased by take_idle is in-flight for as long as the
// caller holds it, until it calls PushIdle (requeue) or PushSucceeded.
//
// Multiple goroutines may invoke methods on a TaskContainer simultaneously.
// All four operations complete in bounded time holding only mu; they must
// never perform I/O.
type TaskContainer struct {
	// mu guards idle, succeeded, and nextUid.
	mu        sync.Mutex
	idle      []*core.Task
	succeeded []*core.Task
	nextUid   core.Uid
	nextGuid  core.Guid
}

// New returns an empty TaskContainer.
func New() *TaskContainer {
	return &TaskContainer{}
}

// AllocateUid returns a fresh, never-before-used Uid.
func (c *TaskContainer) AllocateUid() core.Uid {
	c.mu.Lock()
	defer c.mu.Unlock()
	uid := c.nextUid
	c.nextUid++
	return uid
}

// allocateGuid returns a fresh, never-before-used Guid. Guid allocation is
// independent of Uid allocation: a task requeued after a failed lease
// keeps its original Uid and Guid, it is never reconstructed.
func (c *TaskContainer) allocateGuid() core.Guid {
	c.mu.Lock()
	defer c.mu.Unlock()
	guid := c.nextGuid
	c.nextGuid++
	return guid
}

// NewTask allocates a fresh Guid and constructs a Task carrying the given
// Uid and data. It does not push the task into any set.
func (c *TaskContainer) NewTask(uid core.Uid, data []byte) *core.Task {
	return &core.Task{
		Uid:  uid,
		Guid: c.allocateGuid(),
		Data: data,
	}
}

// PushIdle appends task to the idle set. No deduplication is performed:
// a requeued in-flight task produces no duplicate, because each in-flight
// task is held by exactly one caller.
func (c *TaskContainer) PushIdle(task *core.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idle = append(c.idle, task)
}

// TakeIdle removes and returns the most recently pushed idle task (LIFO),
// or returns nil, false if the idle set is empty.
//
// LIFO is chosen for locality: a fresh batch submitted while the idle pool
// is non-empty dispatches before older requeued tasks. This ordering is an
// implementation choice, not a correctness requirement.
func (c *TaskContainer) TakeIdle() (*core.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.idle)
	if n == 0 {
		return nil, false
	}
	task := c.idle[n-1]
	c.idle[n-1] = nil
	c.idle = c.idle[:n-1]
	return task, true
}

// PushSucceeded appends task to the succeeded set. The caller must have
// set task.Result first.
func (c *TaskContainer) PushSucceeded(task *core.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.succeeded = append(c.succeeded, task)
}

// DrainSucceeded atomically removes and returns every succeeded task.
func (c *TaskContainer) DrainSucceeded() []*core.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.succeeded) == 0 {
		return nil
	}
	drained := c.succeeded
	c.succeeded = nil
	return drained
}
