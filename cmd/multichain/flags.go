package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/luca-patrignani/multichain/config"
	"github.com/luca-patrignani/multichain/metrics"
)

const configFlag = "config"

// addConfigFlags declares one flag per configuration key. Flags left unset
// do not override the file or the environment.
func addConfigFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String(configFlag, "", "configuration file (yaml, json or toml)")
	fs.Uint(config.FlagName("mining.difficulty"), d.Mining.Difficulty, "leading zeros required in a block digest")
	fs.Int(config.FlagName("mining.max_block_transactions"), d.Mining.MaxBlockTransactions, "transactions per block")
	fs.Int(config.FlagName("ledger.max_hydrate"), d.Ledger.MaxHydrate, "blocks read back from storage at start up")
	fs.String(config.FlagName("storage.backend"), d.Storage.Backend, "block storage: file or pebble")
	fs.String(config.FlagName("storage.data_dir"), d.Storage.DataDir, "directory of the blockchain_<group> folders")
	fs.Duration(config.FlagName("network.timeout"), d.Network.Timeout, "fail blocking receives after this long, 0 waits forever")
	fs.Duration(config.FlagName("network.retry_interval"), d.Network.RetryInterval, "pause between delivery attempts to a peer not listening yet")
	fs.String(config.FlagName("network.tls.cert_file"), "", "PEM certificate to serve and dial with")
	fs.String(config.FlagName("network.tls.key_file"), "", "PEM key of the certificate")
	fs.String(config.FlagName("network.tls.ca_file"), "", "PEM certificates trusted for peers")
	fs.Bool(config.FlagName("validation.strict"), d.Validation.Strict, "check proofs, links and signatures of received data")
	fs.String(config.FlagName("log.level"), d.Log.Level, "debug, info, warn or error")
	fs.String(config.FlagName("metrics.file"), "", "write prometheus metrics to this file at exit")
}

// loadConfig merges file, environment and flags, then applies the
// <groups> <clients> <transactions> arguments.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	path, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	counts := make([]int, len(args))
	for i, arg := range args {
		if counts[i], err = strconv.Atoi(arg); err != nil {
			return nil, usageErrorf("argument %d: %q is not a number", i+1, arg)
		}
	}
	cfg.Groups, cfg.Clients, cfg.Transactions = counts[0], counts[1], counts[2]
	if err := cfg.Validate(); err != nil {
		return nil, usageError{err: err}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.Log.SlogLevel()
	logger := pterm.DefaultLogger.WithLevel(ptermLevel(level)).WithWriter(w)
	return slog.New(pterm.NewSlogHandler(logger))
}

func ptermLevel(level slog.Level) pterm.LogLevel {
	switch {
	case level < slog.LevelInfo:
		return pterm.LogLevelDebug
	case level < slog.LevelWarn:
		return pterm.LogLevelInfo
	case level < slog.LevelError:
		return pterm.LogLevelWarn
	default:
		return pterm.LogLevelError
	}
}

func writeMetrics(cfg *config.Config, reg *metrics.Registry) error {
	if cfg.Metrics.File == "" {
		return nil
	}
	f, err := os.Create(cfg.Metrics.File)
	if err != nil {
		return err
	}
	if err := reg.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("could not write metrics: %w", err)
	}
	return f.Close()
}
