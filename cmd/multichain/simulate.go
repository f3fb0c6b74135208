package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luca-patrignani/multichain/metrics"
	"github.com/luca-patrignani/multichain/session"
)

func newSimulateCmd() *cobra.Command {
	var processes int
	cmd := &cobra.Command{
		Use:   "simulate <groups> <clients> <transactions>",
		Short: "Run a whole world as goroutines of this process",
		Args:  usageArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			if processes <= 0 {
				return usageErrorf("--processes must be positive, got %d", processes)
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			reg := metrics.New()
			summaries, err := session.Simulate(processes, cfg, func(rank int) session.Deps {
				return session.Deps{Logger: logger, Metrics: reg}
			})
			if err != nil {
				return err
			}
			if err := writeMetrics(cfg, reg); err != nil {
				return err
			}
			out, err := renderSummaries(summaries)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&processes, "processes", "p", 4, "number of processes in the world")
	addConfigFlags(cmd.Flags())
	return cmd
}
