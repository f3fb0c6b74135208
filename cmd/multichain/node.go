package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/multichain/config"
	"github.com/luca-patrignani/multichain/discovery"
	"github.com/luca-patrignani/multichain/metrics"
	"github.com/luca-patrignani/multichain/network"
	"github.com/luca-patrignani/multichain/session"
)

type nodeOptions struct {
	rank          int
	peers         []string
	listen        string
	discover      int
	discoveryPort uint16
	discoveryWait time.Duration
}

func newNodeCmd() *cobra.Command {
	var opts nodeOptions
	cmd := &cobra.Command{
		Use:   "node <groups> <clients> <transactions>",
		Short: "Run one process of a world over HTTP",
		Long: `Run one process of a world over HTTP.

The world is either listed with --peers, the address of every rank in rank
order, or found on the local network with --discover <processes>. Partial
IPv4 addresses in --peers are completed from the listening address.`,
		Args: usageArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			if (len(opts.peers) == 0) == (opts.discover == 0) {
				return usageErrorf("exactly one of --peers and --discover is required")
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			addresses, l, err := opts.addressBook(cmd.Context(), logger)
			if err != nil {
				return err
			}
			reg := metrics.New()
			summary, err := runNode(cfg, opts.rank, addresses, l, logger, reg)
			if err != nil {
				return err
			}
			if err := writeMetrics(cfg, reg); err != nil {
				return err
			}
			out, err := renderSummaries([]session.Summary{summary})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.rank, "rank", 0, "global rank of this process")
	cmd.Flags().StringSliceVar(&opts.peers, "peers", nil, "address of every rank, in rank order")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "address to listen on (default: own entry of --peers, or localhost:0)")
	cmd.Flags().IntVar(&opts.discover, "discover", 0, "find this many processes with UDP multicast")
	cmd.Flags().Uint16Var(&opts.discoveryPort, "discovery-port", 53552, "UDP port of the discovery announcements")
	cmd.Flags().DurationVar(&opts.discoveryWait, "discovery-timeout", time.Minute, "give up discovery after this long")
	addConfigFlags(cmd.Flags())
	return cmd
}

// addressBook opens the listener of this process and returns the address
// of every rank.
func (o nodeOptions) addressBook(ctx context.Context, logger *slog.Logger) (map[int]string, net.Listener, error) {
	processes := o.discover
	if len(o.peers) > 0 {
		processes = len(o.peers)
	}
	if o.rank < 0 || o.rank >= processes {
		return nil, nil, usageErrorf("rank %d out of range for %d processes", o.rank, processes)
	}
	listen := o.listen
	if listen == "" && len(o.peers) > 0 {
		host, port, err := splitHostPort(o.peers[o.rank], defaultPort)
		if err != nil {
			return nil, nil, usageErrorf("invalid own address %q: %v", o.peers[o.rank], err)
		}
		if isPartialIp(host) {
			host = ""
		}
		listen = net.JoinHostPort(host, port)
	}
	if listen == "" {
		listen = "localhost:0"
	}
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	logger.Info("listening", "address", l.Addr().String())

	if len(o.peers) > 0 {
		var base net.IP
		if tcpAddr, ok := l.Addr().(*net.TCPAddr); ok && !tcpAddr.IP.IsUnspecified() {
			base = tcpAddr.IP
		}
		addresses, err := parsePeers(o.peers, base)
		if err != nil {
			l.Close()
			return nil, nil, usageError{err: err}
		}
		return addresses, l, nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, o.discoveryWait)
	defer cancel()
	spinner, _ := pterm.DefaultSpinner.Start("Looking for the other processes...")
	addresses, err := discovery.AddressBook(ctx, o.discoveryPort, discovery.Announcement{
		Rank:    o.rank,
		Address: l.Addr().String(),
	}, processes, time.Second)
	if err != nil {
		spinner.Fail()
		l.Close()
		return nil, nil, err
	}
	spinner.Success()
	return addresses, l, nil
}

// runNode runs the session of rank over an HTTP transport serving on l.
func runNode(cfg *config.Config, rank int, addresses map[int]string, l net.Listener, logger *slog.Logger, reg *metrics.Registry) (session.Summary, error) {
	opts := []network.PeerOption{
		network.WithTimeout(cfg.Network.Timeout),
		network.WithRetryInterval(cfg.Network.RetryInterval),
		network.WithLogger(logger),
	}
	tlsOpts, err := tlsOptions(cfg.Network.TLS)
	if err != nil {
		l.Close()
		return session.Summary{}, err
	}
	peer := network.NewPeer(rank, addresses, l, append(opts, tlsOpts...)...)
	defer peer.Close()

	s, err := session.New(network.NewWorld(peer), cfg, session.Deps{Logger: logger, Metrics: reg})
	if err != nil {
		return session.Summary{}, err
	}
	summary, err := s.Run()
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return summary, err
}

func tlsOptions(c config.TLSConfig) ([]network.PeerOption, error) {
	if !c.Enabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("could not load certificate: %w", err)
	}
	opts := []network.PeerOption{network.WithCertificate(cert)}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificate found in %s", c.CAFile)
		}
		opts = append(opts, network.WithLimitedCAs(pool))
	}
	return opts, nil
}
