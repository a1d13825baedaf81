package inactivity

import (
	"sync"
	"time"

	"github.com/abhisek/mathdrill/internal/session"
)

// Monitor raises a hint after a quiet period with no interaction. It only
// reads session state; the hint lives here, not in the session.
type Monitor struct {
	mu        sync.Mutex
	idleAfter time.Duration
	state     func() session.ViewState
	onHint    func(Hint)
	timer     *time.Timer
	gen       uint64
	hint      Hint
	stopped   bool
}

// NewMonitor creates a stopped Monitor. state supplies the current view
// state when the idle window expires; onHint receives every hint change,
// including the reset to TargetNone, from a timer goroutine.
func NewMonitor(idleAfter time.Duration, state func() session.ViewState, onHint func(Hint)) *Monitor {
	if idleAfter <= 0 {
		idleAfter = DefaultIdleAfter
	}
	if onHint == nil {
		onHint = func(Hint) {}
	}
	return &Monitor{idleAfter: idleAfter, state: state, onHint: onHint, stopped: true}
}

// Start arms the idle timer.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = false
	m.arm()
}

// Touch records an interaction: any visible hint is cleared and the idle
// window restarts.
func (m *Monitor) Touch() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	cleared := m.hint.Target != TargetNone
	m.hint = Hint{}
	m.arm()
	m.mu.Unlock()

	if cleared {
		m.onHint(Hint{})
	}
}

// Hint returns the hint currently shown.
func (m *Monitor) Hint() Hint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hint
}

// Stop disarms the timer. A stopped Monitor ignores Touch until restarted.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
	}
}

// arm restarts the timer. Callers hold m.mu.
func (m *Monitor) arm() {
	m.gen++
	gen := m.gen
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.idleAfter, func() { m.expire(gen) })
}

func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if m.stopped || gen != m.gen {
		m.mu.Unlock()
		return
	}
	h := Decide(m.state())
	changed := h != m.hint
	m.hint = h
	m.mu.Unlock()

	if changed {
		m.onHint(h)
	}
}
