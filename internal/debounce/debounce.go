// Package debounce provides a single-slot cancellable delayed task.
package debounce

import (
	"sync"
	"time"
)

// Stopper cancels a scheduled timer. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// System schedules on real timers.
var System Scheduler = systemScheduler{}

// Task delays an action until a quiet period has passed. Scheduling again
// replaces the pending action and restarts the delay, so only the most
// recent action can ever run.
//
// A Task shares its owner's lock: Schedule, Cancel, Flush and Pending must be
// called with the lock held, and a fired action runs with the lock held. A
// timer that fires after its action was cancelled or replaced is a no-op.
type Task struct {
	lock  sync.Locker
	sched Scheduler
	delay time.Duration

	gen     uint64
	timer   Stopper
	pending func()
}

// New returns a Task with the given quiet period. A nil sched means System.
func New(delay time.Duration, sched Scheduler, lock sync.Locker) *Task {
	if sched == nil {
		sched = System
	}
	return &Task{lock: lock, sched: sched, delay: delay}
}

// Schedule (re)arms the task with action.
func (t *Task) Schedule(action func()) {
	t.stop()
	t.gen++
	gen := t.gen
	t.pending = action
	t.timer = t.sched.AfterFunc(t.delay, func() { t.fire(gen) })
}

// Cancel drops the pending action, if any, and reports whether there was one.
func (t *Task) Cancel() bool {
	had := t.pending != nil
	t.stop()
	t.gen++
	t.pending = nil
	return had
}

// Flush cancels the timer and runs the pending action immediately. It reports
// whether an action ran.
func (t *Task) Flush() bool {
	action := t.pending
	t.Cancel()
	if action == nil {
		return false
	}
	action()
	return true
}

// Pending reports whether an action is waiting to fire.
func (t *Task) Pending() bool {
	return t.pending != nil
}

func (t *Task) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Task) fire(gen uint64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if gen != t.gen || t.pending == nil {
		return
	}
	action := t.pending
	t.pending = nil
	t.timer = nil
	action()
}
