package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/multichain/ledger"
	"github.com/luca-patrignani/multichain/partition"
)

func sampleLedger(t *testing.T, n int) *ledger.Ledger {
	l := ledger.New(1)
	for i := 0; i < n; i++ {
		b, err := ledger.NewBlock(l.LastHash(), []ledger.Transaction{{
			Sender:     ledger.Identity(fmt.Sprintf("s%d", i)),
			SenderName: fmt.Sprint(i % 2),
			Recipient:  ledger.Identity(fmt.Sprintf("r%d", i)),
			Value:      ledger.FloatOf(float64(i) / 10),
			CreatedAt:  1_700_000_000_000_000_000 + int64(i),
			Signature:  []byte{1, 2, byte(i)},
		}})
		require.NoError(t, err)
		b.Nonce = fmt.Sprint(i * 7)
		l.Append(b)
	}
	return l
}

var membership = partition.Membership{GroupID: 2, GlobalRank: 5, LocalRank: 1, GroupSize: 2}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "blockchain_2", "miner_5_1.log"), Path("out", membership, "log"))
	assert.Equal(t, filepath.Join("out", "blockchain_2", "miner_5_1.json"), Path("out", membership, ".json"))
}

func TestBackends(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendPebble} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			s, err := Open(backend, dir, membership, nil)
			require.NoError(t, err)

			blocks, err := s.ReadBounded(5)
			require.NoError(t, err)
			assert.Empty(t, blocks)

			l := sampleLedger(t, 7)
			for _, b := range l.Blocks() {
				require.NoError(t, s.Append(b))
			}
			blocks, err = s.ReadBounded(5)
			require.NoError(t, err)
			assert.Equal(t, l.Blocks()[:5], blocks)
			blocks, err = s.ReadBounded(0)
			require.NoError(t, err)
			assert.Equal(t, l.Blocks(), blocks)

			shorter := sampleLedger(t, 3)
			require.NoError(t, s.Rewrite(shorter.Blocks()))
			blocks, err = s.ReadBounded(0)
			require.NoError(t, err)
			assert.Equal(t, shorter.Blocks(), blocks)

			require.NoError(t, s.Close())

			// hydration survives reopening
			s, err = Open(backend, dir, membership, nil)
			require.NoError(t, err)
			defer s.Close()
			blocks, err = s.ReadBounded(0)
			require.NoError(t, err)
			hydrated := ledger.New(1)
			hydrated.Restore(blocks)
			assert.Equal(t, shorter.LastHash(), hydrated.LastHash())
		})
	}
}

func TestFileStoreStopsAtUnreadableRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(BackendFile, dir, membership, nil)
	require.NoError(t, err)
	l := sampleLedger(t, 2)
	for _, b := range l.Blocks() {
		require.NoError(t, s.Append(b))
	}

	f, err := os.OpenFile(Path(dir, membership, "log"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xbf, 0x61})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	blocks, err := s.ReadBounded(5)
	require.NoError(t, err)
	assert.Equal(t, l.Blocks(), blocks)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(BackendFile, dir, membership, nil)
	require.NoError(t, err)
	l := sampleLedger(t, 4)
	require.NoError(t, s.WriteSnapshot(l.Snapshot()))

	read, err := ReadSnapshot(Path(dir, membership, "json"))
	require.NoError(t, err)
	blocks, txs := read.Counts()
	assert.Equal(t, 4, blocks)
	assert.Equal(t, 4, txs)

	for i, b := range l.Blocks() {
		got := read[i]
		assert.Equal(t, b.Height, got.Height)
		assert.Equal(t, b.PreviousHash, got.PreviousHash)
		assert.Equal(t, b.Nonce, got.Nonce)
		tx := got.Transactions[0]
		assert.Equal(t, b.Transactions[0].SenderName, tx.Sender)
		assert.Equal(t, b.Transactions[0].Recipient, tx.Recipient)
		assert.Equal(t, b.Transactions[0].Value, tx.Value)
		assert.Equal(t, b.Transactions[0].CreatedAt, tx.Time.UnixNano())
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("tape", t.TempDir(), membership, nil)
	assert.Error(t, err)
}
