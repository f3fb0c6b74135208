package network

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by blocking operations when the configured
	// receive timeout expires before a matching message arrives.
	ErrTimeout = errors.New("network: timed out waiting for message")
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("network: transport closed")
)

type matcher struct {
	comm   string
	source int
	tag    int
	seq    uint64
}

func (q matcher) matches(e Envelope) bool {
	if e.Comm != q.comm || e.Seq != q.seq {
		return false
	}
	if q.source != AnySource && e.Source != q.source {
		return false
	}
	if q.tag == AnyTag {
		return e.Tag >= 0
	}
	return e.Tag == q.tag
}

// mailbox queues every envelope delivered to a process in arrival order.
type mailbox struct {
	mu      sync.Mutex
	queue   []Envelope
	arrived chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{arrived: make(chan struct{})}
}

func (m *mailbox) deliver(e Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, e)
	close(m.arrived)
	m.arrived = make(chan struct{})
}

// take removes the oldest envelope matching q. When none matches it
// returns a channel that is closed on the next delivery.
func (m *mailbox) take(q matcher) (Envelope, bool, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.queue {
		if q.matches(e) {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return e, true, nil
		}
	}
	return Envelope{}, false, m.arrived
}

func (m *mailbox) peek(q matcher) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.queue {
		if q.matches(e) {
			return true
		}
	}
	return false
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// wait blocks until an envelope matching q is available. A zero timeout
// waits forever.
func (m *mailbox) wait(q matcher, timeout time.Duration, closed <-chan struct{}) (Envelope, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		e, ok, arrived := m.take(q)
		if ok {
			return e, nil
		}
		select {
		case <-arrived:
		case <-expired:
			return Envelope{}, ErrTimeout
		case <-closed:
			return Envelope{}, ErrClosed
		}
	}
}
