package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type timerKind int

const (
	timerWarning timerKind = iota
	timerExpiry
	timerRefresh
	timerIdleWarning
	timerIdle
)

func (k timerKind) String() string {
	switch k {
	case timerWarning:
		return "warning"
	case timerExpiry:
		return "expiry"
	case timerRefresh:
		return "refresh"
	case timerIdleWarning:
		return "idle-warning"
	case timerIdle:
		return "idle"
	default:
		return "unknown"
	}
}

type armedTimer struct {
	timer clockwork.Timer
	id    uint64
}

// timerSet holds at most one live timer per kind. Arming a kind stops the
// previous timer of that kind first. A callback runs only if its timer is
// still the live one when it fires; superseded callbacks are dropped.
type timerSet struct {
	clock clockwork.Clock

	mu   sync.Mutex
	seq  uint64
	live map[timerKind]armedTimer
}

func newTimerSet(clock clockwork.Clock) *timerSet {
	return &timerSet{clock: clock, live: make(map[timerKind]armedTimer)}
}

func (s *timerSet) arm(kind timerKind, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked(kind)
	s.seq++
	id := s.seq

	// fn runs without s.mu held so it may call back into the owner.
	t := s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		cur, ok := s.live[kind]
		if !ok || cur.id != id {
			s.mu.Unlock()
			return
		}
		delete(s.live, kind)
		s.mu.Unlock()

		fn()
	})
	s.live[kind] = armedTimer{timer: t, id: id}
}

func (s *timerSet) cancel(kinds ...timerKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range kinds {
		s.stopLocked(k)
	}
}

func (s *timerSet) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.live {
		s.stopLocked(k)
	}
}

func (s *timerSet) stopLocked(kind timerKind) {
	if cur, ok := s.live[kind]; ok {
		cur.timer.Stop()
		delete(s.live, kind)
	}
}

func (s *timerSet) active(kind timerKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[kind]
	return ok
}

func (s *timerSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
