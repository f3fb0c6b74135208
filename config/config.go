// Package config loads the settings of a multichain process from a file,
// the environment (MULTICHAIN_ prefix) and command line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luca-patrignani/multichain/ledger"
)

const EnvPrefix = "MULTICHAIN"

type Config struct {
	Groups       int              `mapstructure:"groups"`
	Clients      int              `mapstructure:"clients"`
	Transactions int              `mapstructure:"transactions"`
	Mining       MiningConfig     `mapstructure:"mining"`
	Ledger       LedgerConfig     `mapstructure:"ledger"`
	Storage      StorageConfig    `mapstructure:"storage"`
	Network      NetworkConfig    `mapstructure:"network"`
	Validation   ValidationConfig `mapstructure:"validation"`
	Log          LogConfig        `mapstructure:"log"`
	Metrics      MetricsConfig    `mapstructure:"metrics"`
}

type MiningConfig struct {
	Difficulty           uint `mapstructure:"difficulty"`
	MaxBlockTransactions int  `mapstructure:"max_block_transactions"`
}

type LedgerConfig struct {
	// MaxHydrate bounds the blocks read back from storage at start up.
	MaxHydrate int `mapstructure:"max_hydrate"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // file | pebble
	DataDir string `mapstructure:"data_dir"`
}

type NetworkConfig struct {
	// Timeout bounds blocking receives; zero waits forever.
	Timeout time.Duration `mapstructure:"timeout"`
	// RetryInterval is the pause between delivery attempts to a peer
	// that is not listening yet.
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	TLS           TLSConfig     `mapstructure:"tls"`
}

type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

func (c TLSConfig) Enabled() bool { return c.CertFile != "" }

type ValidationConfig struct {
	// Strict checks proofs, links and signatures of everything received.
	Strict bool `mapstructure:"strict"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	// File receives the text exposition of the metrics at exit, if set.
	File string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("groups", 1)
	v.SetDefault("clients", 0)
	v.SetDefault("transactions", 0)
	v.SetDefault("mining.difficulty", 5)
	v.SetDefault("mining.max_block_transactions", ledger.MaxTransactions)
	v.SetDefault("ledger.max_hydrate", 5)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.data_dir", ".")
	v.SetDefault("network.timeout", time.Duration(0))
	v.SetDefault("network.retry_interval", 10*time.Millisecond)
	v.SetDefault("network.tls.cert_file", "")
	v.SetDefault("network.tls.key_file", "")
	v.SetDefault("network.tls.ca_file", "")
	v.SetDefault("validation.strict", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.file", "")
}

// Default returns the configuration with every default applied.
func Default() *Config {
	c, err := Load("", nil)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads the configuration file at path, if not empty, then applies
// environment variables and the flags that were set. Flags are bound by
// key, dots and underscores written as dashes (storage-data-dir).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	if flags != nil {
		for _, key := range v.AllKeys() {
			if f := flags.Lookup(FlagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &c, nil
}

// FlagName is the command line flag bound to key.
func FlagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}

// Validate reports every setting that would make a run fail.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if c.Groups <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("groups must be positive, got %d", c.Groups))
	}
	if c.Clients < 0 || c.Transactions < 0 {
		errs = multierror.Append(errs, fmt.Errorf("clients and transactions cannot be negative"))
	}
	if c.Transactions > 0 && c.Clients < 2 {
		errs = multierror.Append(errs, fmt.Errorf("%d transactions need at least two clients, got %d", c.Transactions, c.Clients))
	}
	if c.Mining.Difficulty == 0 {
		errs = multierror.Append(errs, fmt.Errorf("mining.difficulty must be at least 1"))
	}
	if c.Mining.MaxBlockTransactions < 1 || c.Mining.MaxBlockTransactions > ledger.MaxTransactions {
		errs = multierror.Append(errs, fmt.Errorf("mining.max_block_transactions must be in [1, %d], got %d", ledger.MaxTransactions, c.Mining.MaxBlockTransactions))
	}
	if c.Storage.Backend != "file" && c.Storage.Backend != "pebble" {
		errs = multierror.Append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	if c.Network.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("network.timeout cannot be negative"))
	}
	if c.Network.RetryInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("network.retry_interval must be positive"))
	}
	if (c.Network.TLS.CertFile == "") != (c.Network.TLS.KeyFile == "") {
		errs = multierror.Append(errs, fmt.Errorf("network.tls.cert_file and network.tls.key_file go together"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// SlogLevel parses Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", c.Level)
	}
	return level, nil
}
