// Package partition assigns every process of the world to one of a fixed
// number of groups and derives its rank inside the group.
package partition

import (
	"errors"
	"fmt"

	"github.com/luca-patrignani/multichain/network"
)

var (
	ErrInvalidGroupCount  = errors.New("group count must be positive")
	ErrInvalidRank        = errors.New("rank out of range")
	ErrMembershipMismatch = errors.New("split result disagrees with the computed membership")
)

// Membership is fixed for the lifetime of a session.
type Membership struct {
	GroupID    int
	GlobalRank int
	LocalRank  int
	GroupSize  int
}

// Splitter is the collective needed to obtain the group communicator.
type Splitter interface {
	Rank() int
	Size() int
	Split(color int, key int) (*network.Comm, error)
}

// Validate rejects configurations that cannot be partitioned. It must run
// before any collective so that every process fails the same way.
func Validate(groups int, processes int) error {
	if groups <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGroupCount, groups)
	}
	if processes <= 0 {
		return fmt.Errorf("process count must be positive: %d", processes)
	}
	return nil
}

// Assign computes the membership of rank without any communication.
// Members of a group are ordered by global rank, so every process derives
// the same local ranks.
func Assign(processes int, rank int, groups int) (Membership, error) {
	if err := Validate(groups, processes); err != nil {
		return Membership{}, err
	}
	if rank < 0 || rank >= processes {
		return Membership{}, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidRank, rank, processes)
	}
	group := rank % groups
	return Membership{
		GroupID:    group,
		GlobalRank: rank,
		LocalRank:  rank / groups,
		GroupSize:  (processes - group + groups - 1) / groups,
	}, nil
}

// Members lists the global ranks of a group in local rank order.
func Members(processes int, group int, groups int) []int {
	var ranks []int
	for r := group; r < processes; r += groups {
		ranks = append(ranks, r)
	}
	return ranks
}

// Join performs the collective split of world into groups and checks the
// communicator it obtained against Assign.
func Join(world Splitter, groups int) (*network.Comm, Membership, error) {
	m, err := Assign(world.Size(), world.Rank(), groups)
	if err != nil {
		return nil, Membership{}, err
	}
	comm, err := world.Split(m.GroupID, m.GlobalRank)
	if err != nil {
		return nil, Membership{}, fmt.Errorf("could not split world into %d groups: %w", groups, err)
	}
	if comm.Rank() != m.LocalRank || comm.Size() != m.GroupSize {
		return nil, Membership{}, fmt.Errorf("%w: local rank %d/%d, split gave %d/%d",
			ErrMembershipMismatch, m.LocalRank, m.GroupSize, comm.Rank(), comm.Size())
	}
	return comm, m, nil
}
