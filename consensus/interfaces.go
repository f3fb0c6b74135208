package consensus

import (
	"github.com/luca-patrignani/multichain/ledger"
	"github.com/luca-patrignani/multichain/network"
)

// Point-to-point tags used by the group protocols.
const (
	TagBlock  = 0
	TagNonce  = 1
	TagLedger = 2
)

// NetworkLayer abstracts the communicator of a group.
type NetworkLayer interface {
	Rank() int
	Size() int

	// Send queues data at dest without waiting for a matching Recv.
	Send(data []byte, dest int, tag int) error
	// Recv blocks until a message from source with tag arrives.
	Recv(source int, tag int) (network.Message, error)
	// Probe reports whether Recv(source, tag) would return immediately.
	Probe(source int, tag int) bool

	Broadcast(data []byte, root int) ([]byte, error)
	Gather(data []byte, root int) ([][]byte, error)
	AllGather(data []byte) ([][]byte, error)
	Barrier() error
}

// Store is where a member persists its replica.
type Store interface {
	Append(b ledger.Block) error
	Rewrite(blocks []ledger.Block) error
}

type discardStore struct{}

func (discardStore) Append(ledger.Block) error { return nil }

func (discardStore) Rewrite([]ledger.Block) error { return nil }
