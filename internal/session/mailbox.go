package session

import (
	"sync"

	"github.com/nerrad567/foxbridge/internal/engine"
)

// mailbox is an unbounded FIFO of engine events for one connection. Pushing
// never blocks, so engines may emit from any goroutine, including from inside
// Create while the tenant lock is held.
type mailbox struct {
	mu     sync.Mutex
	queue  []engine.Event
	closed bool
	wake   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) push(ev engine.Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// next blocks until an event is queued or the mailbox is closed.
func (m *mailbox) next() (engine.Event, bool) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return engine.Event{}, false
		}
		if len(m.queue) > 0 {
			ev := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return ev, true
		}
		m.mu.Unlock()
		<-m.wake
	}
}
