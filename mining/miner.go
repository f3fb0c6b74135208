// Package mining runs the proof-of-work race of one round inside a group.
package mining

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/luca-patrignani/multichain/consensus"
	"github.com/luca-patrignani/multichain/ledger"
	"github.com/luca-patrignani/multichain/network"
)

var (
	ErrInvalidDifficulty = errors.New("difficulty must be at least 1")
	ErrNoWinner          = errors.New("no valid proof was claimed")
)

// Announcement is sent by a member that found a nonce to every other
// member of its group.
type Announcement struct {
	Round  uint64 `cbor:"round"`
	Nonce  string `cbor:"nonce"`
	Digest string `cbor:"digest"`
}

type claim struct {
	Claimed bool   `cbor:"claimed"`
	Nonce   string `cbor:"nonce,omitempty"`
	Digest  string `cbor:"digest,omitempty"`
}

// Result is the outcome of a round, identical on every member except for
// FoundLocal and Attempts.
type Result struct {
	Nonce  string
	Digest string
	// FoundLocal is true on exactly one member of the group: the winner.
	FoundLocal bool
	// Winner is the local rank whose nonce was adopted.
	Winner int
	// Attempts counts the nonces tested by this member.
	Attempts uint64
	// Claimers lists every member that found a nonce before hearing of
	// another one, by local rank.
	Claimers []int
}

type Miner struct {
	Group     consensus.NetworkLayer
	Validator consensus.Validator
	Logger    *slog.Logger
}

// Mine searches a nonce for block at difficulty, racing the rest of the
// group. Every member of the group must call it with the same block and
// round. Between two tests the member checks for an announcement from a
// peer and stops searching as soon as one is accepted. Members that find
// a nonce announce it. Once everybody stopped, the lowest local rank among
// those that found a nonce wins and everybody adopts its nonce.
func (m *Miner) Mine(block ledger.Block, difficulty uint, round uint64) (Result, error) {
	if difficulty == 0 {
		return Result{}, ErrInvalidDifficulty
	}
	logger := m.logger().With("round", round)
	hash := block.Hash()
	var (
		attempts uint64
		own      claim
		received int
	)
search:
	for {
		for m.Group.Probe(network.AnySource, consensus.TagNonce) {
			ann, from, current, err := m.receive(round)
			if err != nil {
				return Result{}, err
			}
			if !current {
				continue
			}
			received++
			if err := m.validator().ValidateProof(block, ann.Nonce, ann.Digest, difficulty); err != nil {
				logger.Warn("announcement refused", "from", from, "error", err)
				continue
			}
			logger.Debug("announcement accepted", "from", from, "nonce", ann.Nonce)
			break search
		}
		nonce := strconv.FormatUint(attempts, 10)
		attempts++
		digest := ledger.DigestOf(hash, nonce)
		if ledger.MeetsDifficulty(digest, difficulty) {
			own = claim{Claimed: true, Nonce: nonce, Digest: digest}
			if err := m.announce(Announcement{Round: round, Nonce: nonce, Digest: digest}); err != nil {
				return Result{}, err
			}
			logger.Debug("nonce found", "nonce", nonce, "attempts", attempts)
			break
		}
	}

	res, err := m.adjudicate(block, difficulty, own)
	if err != nil {
		return Result{}, err
	}
	res.Attempts = attempts

	// Every claimer other than this member sent it an announcement.
	expected := 0
	for _, c := range res.Claimers {
		if c != m.Group.Rank() {
			expected++
		}
	}
	for received < expected {
		_, _, current, err := m.receive(round)
		if err != nil {
			return Result{}, err
		}
		if current {
			received++
		}
	}
	return res, nil
}

func (m *Miner) announce(ann Announcement) error {
	data, err := ledger.Encode(ann)
	if err != nil {
		return err
	}
	for i := 0; i < m.Group.Size(); i++ {
		if i == m.Group.Rank() {
			continue
		}
		if err := m.Group.Send(data, i, consensus.TagNonce); err != nil {
			return fmt.Errorf("could not announce nonce to %d: %w", i, err)
		}
	}
	return nil
}

// receive takes the next announcement. current is false for announcements
// of other rounds, which are dropped.
func (m *Miner) receive(round uint64) (ann Announcement, from int, current bool, err error) {
	msg, err := m.Group.Recv(network.AnySource, consensus.TagNonce)
	if err != nil {
		return ann, 0, false, err
	}
	if err := ledger.Decode(msg.Payload, &ann); err != nil {
		m.logger().Warn("dropping malformed announcement", "from", msg.Source, "error", err)
		return ann, msg.Source, false, nil
	}
	if ann.Round != round {
		m.logger().Debug("dropping stale announcement", "from", msg.Source, "round", ann.Round, "current", round)
		return ann, msg.Source, false, nil
	}
	return ann, msg.Source, true, nil
}

func (m *Miner) adjudicate(block ledger.Block, difficulty uint, own claim) (Result, error) {
	data, err := ledger.Encode(own)
	if err != nil {
		return Result{}, err
	}
	all, err := m.Group.AllGather(data)
	if err != nil {
		return Result{}, fmt.Errorf("could not exchange claims: %w", err)
	}
	res := Result{Winner: -1}
	for i, b := range all {
		var c claim
		if err := ledger.Decode(b, &c); err != nil {
			return Result{}, fmt.Errorf("malformed claim from %d: %w", i, err)
		}
		if !c.Claimed {
			continue
		}
		res.Claimers = append(res.Claimers, i)
		if res.Winner >= 0 {
			continue
		}
		if err := m.validator().ValidateProof(block, c.Nonce, c.Digest, difficulty); err != nil {
			continue
		}
		res.Winner = i
		res.Nonce = c.Nonce
		res.Digest = c.Digest
	}
	if res.Winner < 0 {
		return Result{}, ErrNoWinner
	}
	res.FoundLocal = res.Winner == m.Group.Rank()
	return res, nil
}

func (m *Miner) validator() consensus.Validator {
	if m.Validator == nil {
		return consensus.TrustAll{}
	}
	return m.Validator
}

func (m *Miner) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
