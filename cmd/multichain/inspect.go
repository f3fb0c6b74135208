package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luca-patrignani/multichain/storage"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <snapshot.json>",
		Short: "Print a ledger snapshot written at the end of a session",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := storage.ReadSnapshot(args[0])
			if err != nil {
				return err
			}
			out, err := renderSnapshot(snapshot)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
