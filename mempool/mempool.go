// Package mempool holds the transactions a group has yet to mine, and
// creates them on the group leader.
package mempool

import (
	"sync"

	"github.com/luca-patrignani/multichain/ledger"
)

// Pool is a FIFO queue of pending transactions.
type Pool struct {
	mu      sync.Mutex
	pending []ledger.Transaction
}

func New(txs ...ledger.Transaction) *Pool {
	p := &Pool{}
	p.Add(txs...)
	return p
}

func (p *Pool) Add(txs ...ledger.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, txs...)
}

// Pull removes the oldest transaction.
func (p *Pool) Pull() (ledger.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return ledger.Transaction{}, false
	}
	tx := p.pending[0]
	p.pending = p.pending[1:]
	return tx, true
}

// PullN removes up to n of the oldest transactions, in order.
func (p *Pool) PullN(n int) []ledger.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.pending) {
		n = len(p.pending)
	}
	if n <= 0 {
		return nil
	}
	txs := append([]ledger.Transaction(nil), p.pending[:n]...)
	p.pending = p.pending[n:]
	return txs
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Pending returns a copy of the queue.
func (p *Pool) Pending() []ledger.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ledger.Transaction(nil), p.pending...)
}
