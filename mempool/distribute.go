package mempool

import (
	"fmt"

	"github.com/luca-patrignani/multichain/ledger"
)

// Group is the part of the group communicator Distribute needs.
type Group interface {
	Rank() int
	Broadcast(data []byte, root int) ([]byte, error)
	Barrier() error
}

// Distribute replicates the leader's population to every member of the
// group. pop is only read on local rank 0. Every member returns the same
// clients and transactions, in the same order.
func Distribute(group Group, pop *Population) (Population, error) {
	var data []byte
	if group.Rank() == 0 {
		if pop == nil {
			return Population{}, fmt.Errorf("leader has no population to distribute")
		}
		var err error
		if data, err = ledger.Encode(pop); err != nil {
			return Population{}, err
		}
	}
	data, err := group.Broadcast(data, 0)
	if err != nil {
		return Population{}, fmt.Errorf("could not distribute population: %w", err)
	}
	var received Population
	if err := ledger.Decode(data, &received); err != nil {
		return Population{}, fmt.Errorf("malformed population: %w", err)
	}
	if err := group.Barrier(); err != nil {
		return Population{}, err
	}
	return received, nil
}
