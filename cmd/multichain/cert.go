package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/luca-patrignani/multichain/network"
)

func newCertCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "cert <address>",
		Short: "Generate a self-signed certificate for the node at address",
		Long: `Generate a self-signed certificate for the node at address.

Every node trusts the certificates listed in network.tls.ca_file: concatenate
the cert.pem of every node into that file to enable mutual TLS.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, certPEM, keyPEM, err := network.GenerateSelfSignedCert(args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			certPath := filepath.Join(out, "cert.pem")
			if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
				return err
			}
			keyPath := filepath.Join(out, "key.pem")
			if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "certificate: %s\nkey: %s\n", certPath, keyPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", ".", "output directory")
	return cmd
}
