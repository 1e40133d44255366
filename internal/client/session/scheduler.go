package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler arms the token timers of one session: a warning WarningWindow
// before expiry, the hard expiry itself and, when enabled, a proactive
// refresh AutoRefreshBefore expiry.
type Scheduler struct {
	timers      *timerSet
	clock       clockwork.Clock
	window      time.Duration
	autoRefresh time.Duration

	onWarning func(gen uint64, expiresAt time.Time)
	onExpiry  func(gen uint64, expiresAt time.Time)
	onRefresh func(gen uint64)

	mu       sync.Mutex
	deadline time.Time
}

// Schedule re-arms the timers for a token expiring at expiresAt. It returns
// false without arming anything when expiresAt is not in the future; the
// caller must then end the session itself.
func (s *Scheduler) Schedule(expiresAt time.Time, gen uint64) bool {
	s.Cancel()

	left := expiresAt.Sub(s.clock.Now())
	if left <= 0 {
		return false
	}

	s.timers.arm(timerWarning, max(left-s.window, 0), func() { s.onWarning(gen, expiresAt) })
	s.timers.arm(timerExpiry, left, func() { s.onExpiry(gen, expiresAt) })
	if s.autoRefresh > 0 && s.onRefresh != nil {
		s.timers.arm(timerRefresh, max(left-s.autoRefresh, time.Second), func() { s.onRefresh(gen) })
	}

	s.mu.Lock()
	s.deadline = expiresAt
	s.mu.Unlock()
	return true
}

// Cancel stops all token timers.
func (s *Scheduler) Cancel() {
	s.timers.cancel(timerWarning, timerExpiry, timerRefresh)

	s.mu.Lock()
	s.deadline = time.Time{}
	s.mu.Unlock()
}

// Deadline is the expiry the timers are armed for, or zero.
func (s *Scheduler) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}
