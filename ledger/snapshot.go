package ledger

import "time"

// Snapshot is the tree form of a ledger written for external inspection:
// blocks keyed by position, transactions keyed by position in their block.
type Snapshot map[int]SnapshotBlock

type SnapshotBlock struct {
	Height       uint64                      `json:"height"`
	PreviousHash string                      `json:"previous_hash"`
	Nonce        string                      `json:"nonce"`
	Transactions map[int]SnapshotTransaction `json:"transactions"`
}

type SnapshotTransaction struct {
	Sender         string    `json:"sender"`
	SenderIdentity Identity  `json:"sender_identity"`
	Recipient      Identity  `json:"recipient"`
	Value          Value     `json:"value"`
	Time           time.Time `json:"time"`
}

// Snapshot returns the tree form of the ledger.
func (l *Ledger) Snapshot() Snapshot {
	blocks := l.Blocks()
	s := make(Snapshot, len(blocks))
	for i, b := range blocks {
		txs := make(map[int]SnapshotTransaction, len(b.Transactions))
		for j, tx := range b.Transactions {
			txs[j] = SnapshotTransaction{
				Sender:         tx.SenderName,
				SenderIdentity: tx.Sender,
				Recipient:      tx.Recipient,
				Value:          tx.Value,
				Time:           time.Unix(0, tx.CreatedAt).UTC(),
			}
		}
		s[i] = SnapshotBlock{
			Height:       b.Height,
			PreviousHash: b.PreviousHash,
			Nonce:        b.Nonce,
			Transactions: txs,
		}
	}
	return s
}

// Counts returns the number of blocks and transactions in the tree.
func (s Snapshot) Counts() (blocks int, transactions int) {
	for _, b := range s {
		transactions += len(b.Transactions)
	}
	return len(s), transactions
}
