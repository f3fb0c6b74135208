// Package session runs one process of a multichain world: it joins its
// group, reconciles its ledger with the other members, replicates the
// leader's transactions and mines them block by block.
package session

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/luca-patrignani/multichain/config"
	"github.com/luca-patrignani/multichain/consensus"
	"github.com/luca-patrignani/multichain/ledger"
	"github.com/luca-patrignani/multichain/mempool"
	"github.com/luca-patrignani/multichain/metrics"
	"github.com/luca-patrignani/multichain/mining"
	"github.com/luca-patrignani/multichain/network"
	"github.com/luca-patrignani/multichain/partition"
	"github.com/luca-patrignani/multichain/signing"
	"github.com/luca-patrignani/multichain/storage"
)

// Signer creates and checks the signatures of transactions.
type Signer interface {
	mempool.Signer
	consensus.SignatureVerifier
}

// Deps are the collaborators of a Session. Every field is optional.
type Deps struct {
	Signer  Signer
	Rand    *rand.Rand
	Logger  *slog.Logger
	Metrics *metrics.Registry
	Now     func() time.Time
}

// Session is the state of one process. Nothing is shared between
// sessions except the transport.
type Session struct {
	ID         string
	Membership partition.Membership
	Group      *network.Comm
	Ledger     *ledger.Ledger
	Pool       *mempool.Pool
	Clients    []ledger.Client

	cfg       *config.Config
	store     storage.Store
	signer    Signer
	validator consensus.Validator
	rng       *rand.Rand
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Recorder

	round  uint64
	mined  int
	report consensus.Report
}

// Summary is what a process reports at the end of Run.
type Summary struct {
	Membership partition.Membership
	Length     int
	// Mined counts the blocks this process won.
	Mined    int
	Rounds   uint64
	Verified bool
	Report   consensus.Report
}

// New validates cfg, joins the group of the calling process and hydrates
// its ledger from storage. Every process of world must call it.
func New(world *network.Comm, cfg *config.Config, deps Deps) (*Session, error) {
	if err := partition.Validate(cfg.Groups, world.Size()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	s := &Session{
		ID:     uuid.NewString(),
		cfg:    cfg,
		signer: deps.Signer,
		rng:    deps.Rand,
		now:    deps.Now,
		logger: deps.Logger,
		Pool:   mempool.New(),
	}
	if s.signer == nil {
		s.signer = signing.NewSchnorr()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rng == nil {
		seed := uint64(s.now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, uint64(world.Rank())))
	}
	if cfg.Validation.Strict {
		s.validator = consensus.Strict{Verifier: s.signer}
	} else {
		s.validator = consensus.TrustAll{}
	}

	group, membership, err := partition.Join(world, cfg.Groups)
	if err != nil {
		return nil, err
	}
	s.Group = group
	s.Membership = membership
	s.logger = s.logger.With(
		"session", s.ID,
		"group", membership.GroupID,
		"rank", membership.GlobalRank,
		"local_rank", membership.LocalRank)
	if deps.Metrics != nil {
		s.metrics = deps.Metrics.For(membership.GroupID, membership.GlobalRank)
	}

	s.store, err = storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir, membership, s.logger)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(cfg.Ledger.MaxHydrate); err != nil {
		s.store.Close()
		return nil, fmt.Errorf("could not hydrate ledger: %w", err)
	}
	return s, nil
}

// hydrate restores at most max blocks from the store. When the store holds
// more, it is cut back to the restored prefix so that later appends extend
// the same chain as the ledger.
func (s *Session) hydrate(max int) error {
	limit := max
	if max > 0 {
		limit = max + 1
	}
	blocks, err := s.store.ReadBounded(limit)
	if err != nil {
		return err
	}
	truncated := max > 0 && len(blocks) > max
	if truncated {
		blocks = blocks[:max]
	}
	s.Ledger = ledger.New(s.cfg.Mining.Difficulty)
	s.Ledger.Restore(blocks)
	if truncated {
		s.logger.Warn("discarding blocks beyond the hydration bound", "kept", max)
		if err := s.store.Rewrite(s.Ledger.Blocks()); err != nil {
			return err
		}
	}
	s.logger.Debug("ledger hydrated", "length", s.Ledger.Length())
	return nil
}

// Run reconciles the ledger, distributes the leader's transactions and
// mines them until the pool is empty. The ledger is then written as a
// JSON snapshot.
func (s *Session) Run() (Summary, error) {
	if err := s.Reconcile(); err != nil {
		return Summary{}, err
	}
	if err := s.Populate(); err != nil {
		return Summary{}, err
	}
	for s.Pool.Size() > 0 {
		if _, err := s.MineNext(); err != nil {
			return Summary{}, err
		}
	}
	if err := s.store.WriteSnapshot(s.Ledger.Snapshot()); err != nil {
		return Summary{}, err
	}
	summary := s.Summary()
	s.logger.Info("session completed",
		"length", summary.Length,
		"mined", summary.Mined,
		"verified", summary.Verified)
	return summary, nil
}

// Reconcile brings the local ledger to the length of the longest one in
// the group.
func (s *Session) Reconcile() error {
	r := &consensus.Reconciler{
		Group:     s.Group,
		Store:     s.store,
		Validator: s.validator,
		Logger:    s.logger,
	}
	l, report, err := r.Reconcile(s.Ledger)
	s.Ledger = l
	s.report = report
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	s.metrics.Reconciled(l.Length(), report.Replaced)
	return nil
}

// Populate creates the clients and transactions on the group leader and
// replicates them to every member.
func (s *Session) Populate() error {
	var pop *mempool.Population
	if s.Membership.LocalRank == 0 {
		g := mempool.Generator{
			Signer: s.signer,
			Rand:   s.rng,
			Policy: mempool.PolicyFor(s.Membership.GroupID),
			Now:    s.now,
		}
		p, err := g.Populate(s.cfg.Clients, s.cfg.Transactions)
		if err != nil {
			return err
		}
		pop = &p
	}
	received, err := mempool.Distribute(s.Group, pop)
	if err != nil {
		return err
	}
	s.Clients = received.Clients
	s.Pool.Add(received.Pending...)
	s.logger.Debug("transactions received", "clients", len(s.Clients), "pending", s.Pool.Size())
	return nil
}

// MineNext mines the next block out of the pool and replicates it.
func (s *Session) MineNext() (ledger.Block, error) {
	s.round++
	txs := s.Pool.PullN(s.cfg.Mining.MaxBlockTransactions)
	candidate, err := ledger.NewBlock(s.Ledger.LastHash(), txs)
	if err != nil {
		return ledger.Block{}, err
	}
	miner := &mining.Miner{Group: s.Group, Validator: s.validator, Logger: s.logger}
	res, err := miner.Mine(candidate, s.cfg.Mining.Difficulty, s.round)
	if err != nil {
		return ledger.Block{}, fmt.Errorf("mining round %d: %w", s.round, err)
	}
	candidate.Nonce = res.Nonce

	b := &consensus.Broadcaster{
		Group:     s.Group,
		Store:     s.store,
		Validator: s.validator,
		Logger:    s.logger,
	}
	appended, err := b.Broadcast(s.Ledger, candidate, res.Winner)
	if err != nil {
		return ledger.Block{}, fmt.Errorf("round %d: %w", s.round, err)
	}
	if res.FoundLocal {
		s.mined++
	}
	s.metrics.BlockAppended(s.Ledger.Length(), res.FoundLocal, res.Attempts)
	s.logger.Info("block appended",
		"height", appended.Height,
		"transactions", len(appended.Transactions),
		"winner", res.Winner,
		"found_local", res.FoundLocal,
		"digest", res.Digest)
	return appended, nil
}

func (s *Session) Summary() Summary {
	return Summary{
		Membership: s.Membership,
		Length:     s.Ledger.Length(),
		Mined:      s.mined,
		Rounds:     s.round,
		Verified:   s.Ledger.IsValid(),
		Report:     s.report,
	}
}

// Close releases the store. The transport belongs to the caller.
func (s *Session) Close() error {
	var result *multierror.Error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
