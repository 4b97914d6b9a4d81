// Package testutil provides shared test doubles for stores, clocks and timers.
package testutil

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/quire/internal/debounce"
	"github.com/starford/quire/internal/kv"
)

// ErrQuota is returned by FlakyKV writes while FailWrites is set.
var ErrQuota = errors.New("quota exceeded")

// FlakyKV is an in-memory kv.Store whose writes can be made to fail.
type FlakyKV struct {
	*kv.Memory

	mu         sync.Mutex
	FailWrites bool
	FailReads  bool
	writes     int
}

// NewFlakyKV returns an empty FlakyKV.
func NewFlakyKV() *FlakyKV {
	return &FlakyKV{Memory: kv.NewMemory()}
}

// ErrBusy is returned by FlakyKV reads while FailReads is set.
var ErrBusy = errors.New("database is locked")

// Get fails with ErrBusy while FailReads is set.
func (f *FlakyKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	fail := f.FailReads
	f.mu.Unlock()
	if fail {
		return "", false, ErrBusy
	}
	return f.Memory.Get(key)
}

// Set counts the write and fails with ErrQuota while FailWrites is set.
func (f *FlakyKV) Set(key, value string) error {
	f.mu.Lock()
	fail := f.FailWrites
	f.writes++
	f.mu.Unlock()
	if fail {
		return ErrQuota
	}
	return f.Memory.Set(key, value)
}

// Writes returns the number of Set calls so far.
func (f *FlakyKV) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// SeqIDs returns a generator yielding "n1", "n2", ...
func SeqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("n%d", n)
	}
}

// Scheduler is a debounce.Scheduler driven by Advance instead of wall time.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

var _ debounce.Scheduler = (*Scheduler)(nil)

type fakeTimer struct {
	s       *Scheduler
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// AfterFunc registers f to run once Advance passes d.
func (s *Scheduler) AfterFunc(d time.Duration, f func()) debounce.Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves time forward by d and runs every timer that came due, in
// due order, on the calling goroutine.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *fakeTimer) int { return int(a.at - b.at) })
	for _, t := range due {
		t.f()
	}
}

// Active returns the number of timers that have neither fired nor stopped.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Notifications records notify.Notifier calls.
type Notifications struct {
	mu    sync.Mutex
	Items []Notification
}

// Notification is one recorded message.
type Notification struct {
	Message string
	IsError bool
}

// Notify records the message.
func (n *Notifications) Notify(message string, isError bool) {
	n.mu.Lock()
	n.Items = append(n.Items, Notification{Message: message, IsError: isError})
	n.mu.Unlock()
}

// Last returns the most recent notification, failing the test if none.
func (n *Notifications) Last(t *testing.T) Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Items) == 0 {
		t.Fatal("no notifications recorded")
	}
	return n.Items[len(n.Items)-1]
}

// Len returns the number of notifications recorded.
func (n *Notifications) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Items)
}
