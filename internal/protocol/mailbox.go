package protocol

import (
	"sync"

	"github.com/eapache/queue"
)

// mailbox is an unbounded FIFO of closures drained by a single goroutine.
// Posting never blocks, so event sources and transport readers cannot stall
// on a busy session and the session can call back into them freely.
type mailbox struct {
	mu     sync.Mutex
	items  *queue.Queue
	notify chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{
		items:  queue.New(),
		notify: make(chan struct{}, 1),
	}
}

// post enqueues fn. It returns false once the mailbox is closed.
func (m *mailbox) post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items.Add(fn)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// drain returns every queued closure in order.
func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	fns := make([]func(), 0, m.items.Length())
	for m.items.Length() > 0 {
		fns = append(fns, m.items.Remove().(func()))
	}
	return fns
}

// close rejects further posts. Closures queued before close are still
// returned by drain.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
