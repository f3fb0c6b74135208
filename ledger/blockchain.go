package ledger

import (
	"fmt"
	"sync"
)

// Chain is the transferable form of a Ledger.
type Chain struct {
	Blocks     []Block `cbor:"blocks"`
	Difficulty uint    `cbor:"difficulty"`
}

// Ledger is a process's local replica of its group's chain.
// It only grows, except when replaced wholesale through FromChain.
type Ledger struct {
	mu         sync.RWMutex
	chain      []Block
	lastHash   string
	difficulty uint
}

// New creates an empty ledger mined at difficulty.
func New(difficulty uint) *Ledger {
	return &Ledger{
		chain:      make([]Block, 0),
		difficulty: difficulty,
	}
}

// FromChain builds a new ledger holding c. It is how a replica is replaced
// during reconciliation.
func FromChain(c Chain) *Ledger {
	l := New(c.Difficulty)
	l.Restore(c.Blocks)
	return l
}

// Append adds b at the end of the chain and returns it with its height.
// Linkage is not checked here: validators decide what is accepted.
func (l *Ledger) Append(b Block) Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(b)
}

// Restore appends blocks read back from storage.
func (l *Ledger) Restore(blocks []Block) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range blocks {
		l.append(b)
	}
}

func (l *Ledger) append(b Block) Block {
	b.Transactions = append([]Transaction(nil), b.Transactions...)
	b.Height = uint64(len(l.chain)) + 1
	l.chain = append(l.chain, b)
	l.lastHash = b.Hash()
	return b
}

func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// LastHash is the hash of the latest block, empty for an empty ledger.
func (l *Ledger) LastHash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastHash
}

func (l *Ledger) Difficulty() uint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.difficulty
}

// Blocks returns a copy of the chain.
func (l *Ledger) Blocks() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Block(nil), l.chain...)
}

// GetLatest returns the most recently added block.
func (l *Ledger) GetLatest() (Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.chain) == 0 {
		return Block{}, fmt.Errorf("ledger is empty")
	}
	return l.chain[len(l.chain)-1], nil
}

// GetByHeight returns the block at height, starting from 1.
func (l *Ledger) GetByHeight(height uint64) (Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if height == 0 || height > uint64(len(l.chain)) {
		return Block{}, fmt.Errorf("height %d out of range", height)
	}
	return l.chain[height-1], nil
}

// Verify checks that every block carries the hash of its predecessor.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := 0; i+1 < len(l.chain); i++ {
		if err := ValidateLink(l.chain[i+1], l.chain[i]); err != nil {
			return fmt.Errorf("block %d invalid: %w", i+2, err)
		}
	}
	return nil
}

// IsValid is Verify as a boolean.
func (l *Ledger) IsValid() bool {
	return l.Verify() == nil
}

// Export returns a copy of the ledger in transferable form.
func (l *Ledger) Export() Chain {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Chain{
		Blocks:     append([]Block(nil), l.chain...),
		Difficulty: l.difficulty,
	}
}

// ValidateLink checks that current follows previous.
func ValidateLink(current, previous Block) error {
	if expected := previous.Hash(); current.PreviousHash != expected {
		return fmt.Errorf("invalid prev hash: expected %s, got %s", expected, current.PreviousHash)
	}
	return nil
}
