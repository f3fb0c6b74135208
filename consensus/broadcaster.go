package consensus

import (
	"fmt"
	"log/slog"

	"github.com/luca-patrignani/multichain/ledger"
)

// Broadcaster replicates the block of a finished mining round.
type Broadcaster struct {
	Group     NetworkLayer
	Store     Store
	Validator Validator
	Logger    *slog.Logger
}

// Broadcast appends block to l on every member of the group. block must
// carry the winning nonce. The winner appends and persists it first, then
// sends it to every other member, which receives it from the winner,
// validates, appends and persists. The round ends with every member
// telling the others whether it refused the block: if any did, Broadcast
// fails with ErrRejected on every member.
// It returns the block as appended, height included.
func (b *Broadcaster) Broadcast(l *ledger.Ledger, block ledger.Block, winner int) (ledger.Block, error) {
	if winner < 0 || winner >= b.Group.Size() {
		return ledger.Block{}, fmt.Errorf("invalid winner %d for group of size %d", winner, b.Group.Size())
	}
	var appended ledger.Block
	var refused bool
	var err error
	if b.Group.Rank() == winner {
		appended, err = b.publish(l, block)
	} else {
		appended, refused, err = b.receive(l, winner)
	}
	if err != nil && !refused {
		return ledger.Block{}, err
	}
	flag := []byte{0}
	if refused {
		flag[0] = 1
	}
	flags, gerr := b.Group.AllGather(flag)
	if gerr != nil {
		return ledger.Block{}, fmt.Errorf("closing round of block %d: %w", appended.Height, gerr)
	}
	if refused {
		return ledger.Block{}, err
	}
	var refusers []int
	for i, f := range flags {
		if len(f) == 1 && f[0] == 1 {
			refusers = append(refusers, i)
		}
	}
	if len(refusers) > 0 {
		return ledger.Block{}, fmt.Errorf("%w: block %d refused by %v", ErrRejected, appended.Height, refusers)
	}
	return appended, nil
}

func (b *Broadcaster) publish(l *ledger.Ledger, block ledger.Block) (ledger.Block, error) {
	appended := l.Append(block)
	if err := b.store().Append(appended); err != nil {
		return ledger.Block{}, fmt.Errorf("could not persist block %d: %w", appended.Height, err)
	}
	data, err := ledger.Encode(appended)
	if err != nil {
		return ledger.Block{}, err
	}
	for i := 0; i < b.Group.Size(); i++ {
		if i == b.Group.Rank() {
			continue
		}
		if err := b.Group.Send(data, i, TagBlock); err != nil {
			return ledger.Block{}, fmt.Errorf("could not send block %d to %d: %w", appended.Height, i, err)
		}
	}
	b.logger().Debug("block published", "height", appended.Height, "hash", appended.Hash())
	return appended, nil
}

// receive reports refused when err comes from the validator.
func (b *Broadcaster) receive(l *ledger.Ledger, winner int) (appended ledger.Block, refused bool, err error) {
	msg, err := b.Group.Recv(winner, TagBlock)
	if err != nil {
		return ledger.Block{}, false, err
	}
	var block ledger.Block
	if err := ledger.Decode(msg.Payload, &block); err != nil {
		return ledger.Block{}, false, fmt.Errorf("malformed block from %d: %w", winner, err)
	}
	if err := b.validator().ValidateBlock(l, block); err != nil {
		b.logger().Error("block refused", "from", winner, "error", err)
		return ledger.Block{}, true, err
	}
	appended = l.Append(block)
	if err := b.store().Append(appended); err != nil {
		return ledger.Block{}, false, fmt.Errorf("could not persist block %d: %w", appended.Height, err)
	}
	return appended, false, nil
}

func (b *Broadcaster) store() Store {
	if b.Store == nil {
		return discardStore{}
	}
	return b.Store
}

func (b *Broadcaster) validator() Validator {
	if b.Validator == nil {
		return TrustAll{}
	}
	return b.Validator
}

func (b *Broadcaster) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}
