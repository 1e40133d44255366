package session

import (
	"sync"
	"time"
)

// EventKind identifies a lifecycle notification.
type EventKind int

const (
	// EventSessionWarning: the access token expires soon (ExpiresAt).
	EventSessionWarning EventKind = iota + 1
	// EventSessionExtended: the session got a later expiry (ExpiresAt).
	EventSessionExtended
	// EventIdleWarning: the session ends for inactivity at LogoutAt.
	EventIdleWarning
	// EventLoggedOut: the session ended (Reason).
	EventLoggedOut
)

func (k EventKind) String() string {
	switch k {
	case EventSessionWarning:
		return "session-warning"
	case EventSessionExtended:
		return "session-extended"
	case EventIdleWarning:
		return "idle-warning"
	case EventLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

// Reason explains a logout.
type Reason string

const (
	ReasonUser          Reason = "user"
	ReasonExpired       Reason = "expired"
	ReasonIdle          Reason = "idle"
	ReasonRefreshFailed Reason = "refresh-failed"
	ReasonUnauthorized  Reason = "unauthorized"
	ReasonRemote        Reason = "remote"
	ReasonRestoreFailed Reason = "restore-failed"
)

type Event struct {
	Kind      EventKind
	ExpiresAt time.Time
	LogoutAt  time.Time
	Reason    Reason
	At        time.Time
}

// broadcaster fans events out without blocking; a slow subscriber misses
// events once its buffer is full.
type broadcaster struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func (b *broadcaster) subscribe(buf int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, max(buf, 1))
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *broadcaster) emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
