package schedule

import (
	"sort"
	"time"
)

const (
	stateIdle = iota
	stateActive
	stateExpired
)

// Clock reports the current session time.
type Clock interface {
	Now() time.Duration
}

// The Timer type represents a single deferred call against a session clock.
// A Timer must be created with Scheduler.AfterFunc or Scheduler.After. Timers
// never fire on their own: the owning Scheduler fires them from Run, which
// keeps all callbacks on the tick goroutine.
type Timer struct {
	s   *Scheduler
	fn  func()
	seq uint64

	state     int
	duration  time.Duration
	startedAt time.Duration
}

// Start starts the timer. It returns false if the timer is already running
// or has expired.
func (t *Timer) Start() bool {
	if t.state != stateIdle {
		return false
	}
	t.startedAt = t.s.clock.Now()
	t.state = stateActive
	return true
}

// Stop prevents the timer from firing. It returns true if the call stopped
// the timer, false if it had already expired or been stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.state == stateExpired {
		return false
	}
	t.state = stateExpired
	t.s.remove(t)
	return true
}

// TimeLeft returns the duration left before the timer fires. An idle timer
// reports its whole duration.
// TimeLeft is safe to be called on a nil timer and will return 0 in that case.
func (t *Timer) TimeLeft() time.Duration {
	if t == nil {
		return 0
	}
	switch t.state {
	case stateIdle:
		return t.duration
	case stateActive:
		left := t.duration - (t.s.clock.Now() - t.startedAt)
		if left < 0 {
			return 0
		}
		return left
	default:
		return 0
	}
}

func (t *Timer) deadline() time.Duration {
	return t.startedAt + t.duration
}

// Scheduler holds the pending timers of one session. It is not safe for
// concurrent use; it belongs to the tick goroutine.
type Scheduler struct {
	clock  Clock
	timers []*Timer
	seq    uint64
}

func New(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// AfterFunc returns an idle timer that calls f once it has been started and
// d has elapsed on the session clock.
func (s *Scheduler) AfterFunc(d time.Duration, f func()) *Timer {
	s.seq++
	t := &Timer{
		s:        s,
		fn:       f,
		seq:      s.seq,
		duration: d,
	}
	s.timers = append(s.timers, t)
	return t
}

// After is AfterFunc followed by Start.
func (s *Scheduler) After(d time.Duration, f func()) *Timer {
	t := s.AfterFunc(d, f)
	t.Start()
	return t
}

// Run fires every active timer whose deadline has passed, in deadline order.
// Timers scheduled by callbacks with a zero delay fire in the same call.
func (s *Scheduler) Run() int {
	fired := 0
	for {
		now := s.clock.Now()
		var due []*Timer
		for _, t := range s.timers {
			if t.state == stateActive && t.deadline() <= now {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			return fired
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].deadline() == due[j].deadline() {
				return due[i].seq < due[j].seq
			}
			return due[i].deadline() < due[j].deadline()
		})
		for _, t := range due {
			if t.state != stateActive {
				continue
			}
			t.state = stateExpired
			s.remove(t)
			t.fn()
			fired++
		}
	}
}

// Len returns the number of timers that have not fired or been stopped.
func (s *Scheduler) Len() int {
	return len(s.timers)
}

// Clear stops every pending timer.
func (s *Scheduler) Clear() {
	for _, t := range s.timers {
		t.state = stateExpired
	}
	s.timers = nil
}

func (s *Scheduler) remove(t *Timer) {
	for i, other := range s.timers {
		if other == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return
		}
	}
}
