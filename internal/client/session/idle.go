package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Activity is a kind of user input that counts as presence.
type Activity int

const (
	PointerMove Activity = iota + 1
	KeyPress
	Click
	Touch
)

func (a Activity) String() string {
	switch a {
	case PointerMove:
		return "pointer-move"
	case KeyPress:
		return "key-press"
	case Click:
		return "click"
	case Touch:
		return "touch"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

// IdleMonitor logs the session out after Timeout without activity, warning
// Warning before that. A zero Timeout disables it.
type IdleMonitor struct {
	timers  *timerSet
	clock   clockwork.Clock
	timeout time.Duration
	warning time.Duration

	onWarning func(gen uint64, logoutAt time.Time)
	onIdle    func(gen uint64)

	mu    sync.Mutex
	armed bool
	gen   uint64
	last  time.Time
}

// Arm starts watching for gen, counting from now.
func (m *IdleMonitor) Arm(gen uint64) {
	if m.timeout <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.armed = true
	m.gen = gen
	m.last = m.clock.Now()
	m.armLocked()
}

// Disarm stops the idle timers.
func (m *IdleMonitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.armed = false
	m.timers.cancel(timerIdleWarning, timerIdle)
}

// Signal records activity and restarts the idle countdown.
func (m *IdleMonitor) Signal(Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed {
		return
	}
	m.last = m.clock.Now()
	m.armLocked()
}

func (m *IdleMonitor) armLocked() {
	gen, logoutAt := m.gen, m.last.Add(m.timeout)
	if m.warning > 0 && m.warning < m.timeout {
		m.timers.arm(timerIdleWarning, m.timeout-m.warning, func() { m.onWarning(gen, logoutAt) })
	}
	m.timers.arm(timerIdle, m.timeout, func() { m.onIdle(gen) })
}

// LastActivity is the time of the last signal, or of arming.
func (m *IdleMonitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Idle reports whether the armed monitor has seen no activity for Timeout.
func (m *IdleMonitor) Idle(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed && now.Sub(m.last) >= m.timeout
}
