package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Hub connects a fixed number of in-process endpoints. Endpoints share
// nothing but the hub: every delivered payload is a private copy.
type Hub struct {
	endpoints []*Endpoint
}

// NewHub creates a world of n endpoints. A zero timeout makes blocking
// receives wait forever.
func NewHub(n int, timeout time.Duration) *Hub {
	h := &Hub{endpoints: make([]*Endpoint, n)}
	for i := range h.endpoints {
		h.endpoints[i] = &Endpoint{
			hub:     h,
			rank:    i,
			box:     newMailbox(),
			closed:  make(chan struct{}),
			timeout: timeout,
		}
	}
	return h
}

// Endpoint returns the endpoint of the given world rank.
func (h *Hub) Endpoint(rank int) *Endpoint {
	return h.endpoints[rank]
}

// Close closes every endpoint of the hub.
func (h *Hub) Close() error {
	var result *multierror.Error
	for _, e := range h.endpoints {
		if err := e.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Endpoint is one process of a Hub.
type Endpoint struct {
	hub       *Hub
	rank      int
	box       *mailbox
	closed    chan struct{}
	closeOnce sync.Once
	timeout   time.Duration
}

func (e *Endpoint) Rank() int { return e.rank }

func (e *Endpoint) Size() int { return len(e.hub.endpoints) }

// Pending is the number of queued messages not yet received.
func (e *Endpoint) Pending() int { return e.box.len() }

func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}

func (e *Endpoint) deliver(dest int, env Envelope) error {
	if dest < 0 || dest >= len(e.hub.endpoints) {
		return fmt.Errorf("no endpoint with rank %d", dest)
	}
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	env.Payload = cloneBytes(env.Payload)
	e.hub.endpoints[dest].box.deliver(env)
	return nil
}

func (e *Endpoint) inbox() *mailbox { return e.box }

func (e *Endpoint) done() <-chan struct{} { return e.closed }

func (e *Endpoint) recvTimeout() time.Duration { return e.timeout }
