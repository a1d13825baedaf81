package autosave

import (
	"sort"
	"sync"
	"time"
)

// DefaultDelay is the quiet window after the last edit before a save fires.
const DefaultDelay = 500 * time.Millisecond

// pendingSave is an armed debounce timer for one field.
type pendingSave struct {
	timer *time.Timer
	task  Task
	gen   uint64
}

// Scheduler debounces edits per field. Each Schedule call restarts the
// field's timer; when a timer expires without another edit the latest task
// is handed to emit.
type Scheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	emit    func(Task)
	pending map[FieldKey]*pendingSave
	gen     uint64
	closed  bool
}

// NewScheduler creates a Scheduler that hands settled tasks to emit. emit is
// called from timer goroutines with the scheduler's lock held, so it must be
// safe for concurrent use and must not call back into the Scheduler.
func NewScheduler(delay time.Duration, emit func(Task)) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler{
		delay:   delay,
		emit:    emit,
		pending: make(map[FieldKey]*pendingSave),
	}
}

// Schedule records t as the latest value for its field and restarts the
// field's quiet window.
func (s *Scheduler) Schedule(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if p, ok := s.pending[t.Key]; ok {
		p.timer.Stop()
	}

	s.gen++
	gen := s.gen
	key := t.Key
	p := &pendingSave{task: t, gen: gen}
	p.timer = time.AfterFunc(s.delay, func() { s.fire(key, gen) })
	s.pending[key] = p
}

// fire emits the task armed under gen, unless it was superseded or cancelled.
// Emitting under the lock means a concurrent FlushPage returns only after the
// task has reached the queue.
func (s *Scheduler) fire(key FieldKey, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	if !ok || p.gen != gen {
		return
	}
	delete(s.pending, key)

	if !p.task.empty() {
		s.emit(p.task)
	}
}

// CancelPage stops every pending timer for page without emitting.
func (s *Scheduler) CancelPage(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, p := range s.pending {
		if key.Page == page {
			p.timer.Stop()
			delete(s.pending, key)
			n++
		}
	}
	return n
}

// CancelAll stops every pending timer without emitting.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, key)
	}
}

// FlushPage fires every pending timer for page immediately, in sequence
// order, and returns how many tasks were emitted.
func (s *Scheduler) FlushPage(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Task
	for key, p := range s.pending {
		if key.Page == page {
			p.timer.Stop()
			delete(s.pending, key)
			if !p.task.empty() {
				due = append(due, p.task)
			}
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].Key.Sequence < due[j].Key.Sequence })
	for _, t := range due {
		s.emit(t)
	}
	return len(due)
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels all timers; later Schedule calls are ignored.
func (s *Scheduler) Close() {
	s.CancelAll()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
