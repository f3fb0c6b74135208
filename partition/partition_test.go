package partition

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"github.com/luca-patrignani/multichain/network"
)

func TestAssignIsPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		processes := rapid.IntRange(1, 64).Draw(t, "processes")
		groups := rapid.IntRange(1, 16).Draw(t, "groups")
		rank := rapid.IntRange(0, processes-1).Draw(t, "rank")

		a, err := Assign(processes, rank, groups)
		require.NoError(t, err)
		b, err := Assign(processes, rank, groups)
		require.NoError(t, err)
		require.Equal(t, a, b)
		require.Equal(t, rank%groups, a.GroupID)
	})
}

func TestAssignMatchesSortedMembers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		processes := rapid.IntRange(1, 64).Draw(t, "processes")
		groups := rapid.IntRange(1, 16).Draw(t, "groups")

		byGroup := map[int][]int{}
		seen := map[[2]int]bool{}
		for r := 0; r < processes; r++ {
			m, err := Assign(processes, r, groups)
			require.NoError(t, err)
			byGroup[m.GroupID] = append(byGroup[m.GroupID], r)
			key := [2]int{m.GroupID, m.LocalRank}
			require.False(t, seen[key], "duplicate local rank %v", key)
			seen[key] = true
		}
		for g, ranks := range byGroup {
			sort.Ints(ranks)
			require.Equal(t, ranks, Members(processes, g, groups))
			for local, r := range ranks {
				m, _ := Assign(processes, r, groups)
				require.Equal(t, local, m.LocalRank)
				require.Equal(t, len(ranks), m.GroupSize)
			}
		}
	})
}

func TestInvalidGroupCount(t *testing.T) {
	for _, g := range []int{0, -1} {
		_, err := Assign(4, 0, g)
		require.True(t, errors.Is(err, ErrInvalidGroupCount))
	}
	_, err := Assign(4, 4, 2)
	require.True(t, errors.Is(err, ErrInvalidRank))
}

func TestJoin(t *testing.T) {
	n, groups := 7, 3
	hub := network.NewHub(n, 10*time.Second)
	results := make([]Membership, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		world := network.NewWorld(hub.Endpoint(i))
		g.Go(func() error {
			comm, m, err := Join(world, groups)
			if err != nil {
				return err
			}
			results[i] = m
			return comm.Barrier()
		})
	}
	require.NoError(t, g.Wait())
	for i, m := range results {
		expected, err := Assign(n, i, groups)
		require.NoError(t, err)
		require.Equal(t, expected, m)
	}
}
