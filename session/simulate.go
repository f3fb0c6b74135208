package session

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/luca-patrignani/multichain/config"
	"github.com/luca-patrignani/multichain/network"
)

// Simulate runs a world of processes as goroutines connected by an
// in-process hub. deps, if not nil, provides the collaborators of each
// global rank. Summaries are indexed by global rank.
func Simulate(processes int, cfg *config.Config, deps func(rank int) Deps) ([]Summary, error) {
	if processes <= 0 {
		return nil, fmt.Errorf("invalid number of processes %d", processes)
	}
	hub := network.NewHub(processes, cfg.Network.Timeout)
	summaries := make([]Summary, processes)
	var g errgroup.Group
	for rank := 0; rank < processes; rank++ {
		world := network.NewWorld(hub.Endpoint(rank))
		g.Go(func() (err error) {
			var d Deps
			if deps != nil {
				d = deps(rank)
			}
			s, err := New(world, cfg, d)
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			defer func() {
				if cerr := s.Close(); cerr != nil {
					err = multierror.Append(err, cerr)
				}
			}()
			summaries[rank], err = s.Run()
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if cerr := hub.Close(); cerr != nil {
		err = multierror.Append(err, cerr)
	}
	if err != nil {
		return summaries, err
	}
	return summaries, nil
}
