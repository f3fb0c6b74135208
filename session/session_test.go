package session

import (
	"math/rand/v2"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/multichain/config"
	"github.com/luca-patrignani/multichain/ledger"
	"github.com/luca-patrignani/multichain/metrics"
	"github.com/luca-patrignani/multichain/partition"
	"github.com/luca-patrignani/multichain/storage"
)

func testConfig(t *testing.T, groups, clients, transactions int, difficulty uint) *config.Config {
	c := config.Default()
	c.Groups = groups
	c.Clients = clients
	c.Transactions = transactions
	c.Mining.Difficulty = difficulty
	c.Storage.DataDir = t.TempDir()
	return c
}

func seeded(rank int) Deps {
	return Deps{Rand: rand.New(rand.NewPCG(uint64(rank), 99))}
}

func readChain(t *testing.T, c *config.Config, m partition.Membership) []ledger.Block {
	s, err := storage.Open(c.Storage.Backend, c.Storage.DataDir, m, nil)
	require.NoError(t, err)
	defer s.Close()
	blocks, err := s.ReadBounded(0)
	require.NoError(t, err)
	return blocks
}

func TestSingleMemberTwoClientsFiveTransactions(t *testing.T) {
	c := testConfig(t, 1, 2, 5, 1)
	summaries, err := Simulate(1, c, seeded)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, 2, s.Length)
	assert.Equal(t, 2, s.Mined)
	assert.True(t, s.Verified)

	blocks := readChain(t, c, s.Membership)
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0].Transactions, 3)
	assert.Len(t, blocks[1].Transactions, 2)
	assert.Equal(t, "", blocks[0].PreviousHash)
	assert.Equal(t, blocks[0].Hash(), blocks[1].PreviousHash)
	for _, b := range blocks {
		assert.True(t, ledger.MeetsDifficulty(b.Digest(b.Nonce), 1))
	}

	snapshot, err := storage.ReadSnapshot(storage.Path(c.Storage.DataDir, s.Membership, "json"))
	require.NoError(t, err)
	nblocks, ntxs := snapshot.Counts()
	assert.Equal(t, 2, nblocks)
	assert.Equal(t, 5, ntxs)
}

func TestGroupsMineIndependently(t *testing.T) {
	processes := 5
	c := testConfig(t, 2, 3, 7, 2)
	c.Validation.Strict = true
	reg := metrics.New()
	summaries, err := Simulate(processes, c, func(rank int) Deps {
		d := seeded(rank)
		d.Metrics = reg
		return d
	})
	require.NoError(t, err)
	series, err := testutil.GatherAndCount(reg.Gatherer(), "multichain_blocks_appended_total")
	require.NoError(t, err)
	assert.Equal(t, processes, series)

	wins := map[int]int{}
	chains := map[int][]ledger.Block{}
	for rank, s := range summaries {
		assert.Equal(t, rank%2, s.Membership.GroupID)
		assert.Equal(t, 3, s.Length, "rank %d", rank)
		assert.True(t, s.Verified)
		wins[s.Membership.GroupID] += s.Mined

		blocks := readChain(t, c, s.Membership)
		if first, ok := chains[s.Membership.GroupID]; ok {
			assert.Equal(t, first, blocks, "rank %d diverged", rank)
		} else {
			chains[s.Membership.GroupID] = blocks
		}
	}
	assert.Equal(t, map[int]int{0: 3, 1: 3}, wins)
	assert.Equal(t, ledger.IntValue, chains[0][0].Transactions[0].Value.Kind)
	assert.Equal(t, ledger.BoolValue, chains[1][0].Transactions[0].Value.Kind)
}

func TestRunResumesAndReconciles(t *testing.T) {
	processes := 3
	c := testConfig(t, 1, 2, 4, 1)
	_, err := Simulate(processes, c, seeded)
	require.NoError(t, err)

	// the last member loses its replica
	lost := partition.Membership{GroupID: 0, GlobalRank: 2, LocalRank: 2, GroupSize: 3}
	require.NoError(t, os.Remove(storage.Path(c.Storage.DataDir, lost, "log")))

	summaries, err := Simulate(processes, c, seeded)
	require.NoError(t, err)
	for rank, s := range summaries {
		assert.Equal(t, 4, s.Length, "rank %d", rank)
		assert.True(t, s.Verified)
		assert.Equal(t, []int{2}, s.Report.Synced)
		assert.Equal(t, 0, s.Report.Authority)
	}
	assert.True(t, summaries[2].Report.Replaced)
	assert.Len(t, readChain(t, c, lost), 4)
}

func TestBoundedHydrationKeepsStoreAChain(t *testing.T) {
	c := testConfig(t, 1, 2, 6, 1)
	c.Ledger.MaxHydrate = 1
	summaries, err := Simulate(1, c, seeded)
	require.NoError(t, err)
	require.Equal(t, 2, summaries[0].Length)

	summaries, err = Simulate(1, c, seeded)
	require.NoError(t, err)
	s := summaries[0]
	assert.Equal(t, 3, s.Length)
	assert.True(t, s.Verified)

	blocks := readChain(t, c, s.Membership)
	require.Len(t, blocks, 3)
	assert.NoError(t, ledger.FromChain(ledger.Chain{Blocks: blocks, Difficulty: 1}).Verify())
}

func TestPebbleBackend(t *testing.T) {
	c := testConfig(t, 1, 3, 3, 1)
	c.Storage.Backend = storage.BackendPebble
	summaries, err := Simulate(2, c, nil)
	require.NoError(t, err)
	for _, s := range summaries {
		assert.Equal(t, 1, s.Length)
		assert.Len(t, readChain(t, c, s.Membership), 1)
	}
}

func TestInvalidConfigurationFailsEveryProcess(t *testing.T) {
	c := testConfig(t, 1, 1, 3, 1)
	_, err := Simulate(2, c, nil)
	assert.Error(t, err)

	c = testConfig(t, 1, 2, 3, 1)
	c.Groups = 0
	_, err = Simulate(2, c, nil)
	assert.ErrorIs(t, err, partition.ErrInvalidGroupCount)
}
