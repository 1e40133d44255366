package crosstab

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a closed notifier.
var ErrClosed = errors.New("crosstab: notifier closed")

const defaultBuffer = 16

// Hub is an in-process Notifier. A subscriber whose buffer is full misses
// SessionExtended signals; a LoggedOut signal waits for room until the
// subscriber or the publisher gives up, since a missed logout leaves a tab
// signed in.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Signal]context.Context
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Signal]context.Context)}
}

func (h *Hub) Publish(ctx context.Context, s Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	for ch, subCtx := range h.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		if s.Kind != LoggedOut {
			continue
		}
		select {
		case ch <- s:
		case <-subCtx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context) (<-chan Signal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	ch := make(chan Signal, defaultBuffer)
	h.subs[ch] = ctx

	go func() {
		<-ctx.Done()
		h.remove(ch)
	}()
	return ch, nil
}

func (h *Hub) remove(ch chan Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Close closes every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	return nil
}
