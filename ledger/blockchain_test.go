package ledger

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func makeTransaction(i int) Transaction {
	return Transaction{
		Sender:     Identity(fmt.Sprintf("sender-%d", i)),
		SenderName: fmt.Sprint(i % 2),
		Recipient:  Identity(fmt.Sprintf("recipient-%d", i)),
		Value:      IntOf(int64(i)),
		CreatedAt:  int64(1_700_000_000_000_000_000 + i),
		Signature:  []byte{byte(i)},
	}
}

// buildLedger appends n linked blocks of one transaction each.
func buildLedger(t require.TestingT, n int) *Ledger {
	l := New(1)
	for i := 0; i < n; i++ {
		b, err := NewBlock(l.LastHash(), []Transaction{makeTransaction(i)})
		require.NoError(t, err)
		b.Nonce = fmt.Sprint(i)
		l.Append(b)
	}
	return l
}

func TestAppendAssignsHeightAndLastHash(t *testing.T) {
	l := New(2)
	assert.Equal(t, "", l.LastHash())
	assert.Equal(t, 0, l.Length())
	_, err := l.GetLatest()
	assert.Error(t, err)

	b, err := NewBlock("", []Transaction{makeTransaction(0)})
	require.NoError(t, err)
	appended := l.Append(b)
	assert.Equal(t, uint64(1), appended.Height)
	assert.Equal(t, appended.Hash(), l.LastHash())

	b2, err := NewBlock(l.LastHash(), []Transaction{makeTransaction(1), makeTransaction(2)})
	require.NoError(t, err)
	appended = l.Append(b2)
	assert.Equal(t, uint64(2), appended.Height)
	assert.Equal(t, 2, l.Length())

	latest, err := l.GetLatest()
	require.NoError(t, err)
	assert.Equal(t, appended, latest)
	first, err := l.GetByHeight(1)
	require.NoError(t, err)
	assert.Equal(t, "", first.PreviousHash)
	_, err = l.GetByHeight(3)
	assert.Error(t, err)
}

func TestNewBlockRejectsTooManyTransactions(t *testing.T) {
	txs := []Transaction{makeTransaction(0), makeTransaction(1), makeTransaction(2), makeTransaction(3)}
	_, err := NewBlock("", txs)
	assert.ErrorIs(t, err, ErrTooManyTransactions)
}

func TestHashExcludesNonceAndHeight(t *testing.T) {
	b, err := NewBlock("prev", []Transaction{makeTransaction(1)})
	require.NoError(t, err)
	h := b.Hash()
	b.Nonce = "42"
	b.Height = 9
	assert.Equal(t, h, b.Hash())
	b.PreviousHash = "other"
	assert.NotEqual(t, h, b.Hash())
}

func TestHashSurvivesEncoding(t *testing.T) {
	l := buildLedger(t, 3)
	data, err := Encode(l.Export())
	require.NoError(t, err)
	var c Chain
	require.NoError(t, Decode(data, &c))
	copied := FromChain(c)
	assert.Equal(t, l.LastHash(), copied.LastHash())
	assert.Equal(t, l.Blocks(), copied.Blocks())
	assert.NoError(t, copied.Verify())
}

func TestFromChainIsANewReplica(t *testing.T) {
	l := buildLedger(t, 2)
	replica := FromChain(l.Export())
	assert.NotSame(t, l, replica)
	replica.Append(Block{PreviousHash: replica.LastHash()})
	assert.Equal(t, 2, l.Length())
	assert.Equal(t, 3, replica.Length())
}

func TestVerify(t *testing.T) {
	assert.NoError(t, New(1).Verify())
	assert.NoError(t, buildLedger(t, 1).Verify())
	assert.True(t, buildLedger(t, 5).IsValid())

	l := New(1)
	l.Append(Block{Transactions: []Transaction{makeTransaction(0)}})
	l.Append(Block{Transactions: []Transaction{makeTransaction(1)}, PreviousHash: "wrong"})
	assert.False(t, l.IsValid())
}

func TestVerifyDetectsMutatedTransactions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 8).Draw(t, "blocks")
		victim := rapid.IntRange(0, n-2).Draw(t, "victim")
		delta := rapid.Int64Range(1, 1000).Draw(t, "delta")

		c := buildLedger(t, n).Export()
		c.Blocks[victim].Transactions[0].Value.Int += delta
		require.False(t, FromChain(c).IsValid())
	})
}

func TestMeetsDifficulty(t *testing.T) {
	assert.True(t, MeetsDifficulty("00ab", 2))
	assert.True(t, MeetsDifficulty("000b", 2))
	assert.False(t, MeetsDifficulty("0a0b", 2))
	assert.False(t, MeetsDifficulty("0", 2))
	assert.True(t, MeetsDifficulty("abc", 0))
}

func TestValueJSON(t *testing.T) {
	for _, v := range []Value{IntOf(7), BoolOf(true), BoolOf(false), FloatOf(0.25), FloatOf(3)} {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var back Value
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, v, back, "json %s", data)
	}
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"string","value":"x"}`), &Value{}))
}

func TestSnapshotCounts(t *testing.T) {
	l := New(1)
	l.Append(Block{Transactions: []Transaction{makeTransaction(0), makeTransaction(1), makeTransaction(2)}})
	l.Append(Block{Transactions: []Transaction{makeTransaction(3), makeTransaction(4)}, PreviousHash: l.LastHash()})
	s := l.Snapshot()
	blocks, txs := s.Counts()
	assert.Equal(t, 2, blocks)
	assert.Equal(t, 5, txs)
	assert.Equal(t, "1", s[1].Transactions[0].Sender)
	assert.Equal(t, uint64(2), s[1].Height)
}

func TestSigningBytesIgnoreSignature(t *testing.T) {
	tx := makeTransaction(3)
	a, err := tx.SigningBytes()
	require.NoError(t, err)
	tx.Signature = []byte("other")
	b, err := tx.SigningBytes()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
