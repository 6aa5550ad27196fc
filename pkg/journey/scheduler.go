package journey

import (
	"sync"
	"time"
)

// FireFunc resumes runID, suspended on delayNodeID, at next (nil completes the run).
type FireFunc func(runID, delayNodeID string, next *string)

type pendingTimer struct {
	timer       *time.Timer
	seq         uint64
	delayNodeID string
	next        *string
	deadline    time.Time
}

// Scheduler owns at most one pending delay timer per run. Timers live only in
// process memory; Coordinator.Recover re-arms them after a restart.
type Scheduler struct {
	mu       sync.Mutex
	timers   map[string]*pendingTimer
	seq      uint64
	stopped  bool
	fire     FireFunc
	observer func(pending int)
}

type SchedulerOption func(*Scheduler)

// WithPendingObserver is called with the number of live timers after every change.
func WithPendingObserver(observer func(pending int)) SchedulerOption {
	return func(s *Scheduler) {
		s.observer = observer
	}
}

// NewScheduler creates a scheduler that calls fire when a timer expires.
func NewScheduler(fire FireFunc, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		timers: make(map[string]*pendingTimer),
		fire:   fire,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Schedule arms a timer for runID, replacing any timer already pending for it.
func (s *Scheduler) Schedule(runID, delayNodeID string, delay time.Duration, next *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}

	if existing, ok := s.timers[runID]; ok {
		existing.timer.Stop()
	}

	if delay < 0 {
		delay = 0
	}

	s.seq++
	entry := &pendingTimer{
		seq:         s.seq,
		delayNodeID: delayNodeID,
		next:        next,
		deadline:    time.Now().Add(delay),
	}
	entry.timer = time.AfterFunc(delay, func() { s.expire(runID, entry.seq) })
	s.timers[runID] = entry
	s.notify()

	return nil
}

// expire removes the entry and fires it, unless the entry was replaced or
// cancelled after its timer had already started running.
func (s *Scheduler) expire(runID string, seq uint64) {
	s.mu.Lock()

	entry, ok := s.timers[runID]
	if !ok || entry.seq != seq {
		s.mu.Unlock()

		return
	}

	delete(s.timers, runID)
	s.notify()
	s.mu.Unlock()

	s.fire(runID, entry.delayNodeID, entry.next)
}

// Cancel stops the pending timer of runID and reports whether one existed.
// The run itself is left untouched.
func (s *Scheduler) Cancel(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[runID]
	if !ok {
		return false
	}

	entry.timer.Stop()
	delete(s.timers, runID)
	s.notify()

	return true
}

// Pending returns the number of live timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// Has reports whether runID has a live timer.
func (s *Scheduler) Has(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.timers[runID]

	return ok
}

// Deadline returns when the pending timer of runID fires.
func (s *Scheduler) Deadline(runID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[runID]
	if !ok {
		return time.Time{}, false
	}

	return entry.deadline, true
}

// Stop cancels every pending timer and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true

	for runID, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, runID)
	}

	s.notify()
}

func (s *Scheduler) notify() {
	if s.observer != nil {
		s.observer(len(s.timers))
	}
}
