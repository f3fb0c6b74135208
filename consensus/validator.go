package consensus

import (
	"errors"
	"fmt"

	"github.com/luca-patrignani/multichain/ledger"
)

var ErrRejected = errors.New("rejected by validator")

// Validator decides what a member accepts from its peers.
type Validator interface {
	// ValidateProof checks a nonce announced for candidate.
	ValidateProof(candidate ledger.Block, nonce string, digest string, difficulty uint) error
	// ValidateBlock checks a block about to be appended to l.
	ValidateBlock(l *ledger.Ledger, b ledger.Block) error
	// ValidateChain checks a chain about to replace a replica.
	ValidateChain(c ledger.Chain) error
}

// TrustAll accepts every announcement, block and chain. Members are assumed
// to be honest.
type TrustAll struct{}

func (TrustAll) ValidateProof(ledger.Block, string, string, uint) error { return nil }

func (TrustAll) ValidateBlock(*ledger.Ledger, ledger.Block) error { return nil }

func (TrustAll) ValidateChain(ledger.Chain) error { return nil }

// SignatureVerifier checks that sig was produced by identity over msg.
type SignatureVerifier interface {
	Verify(identity ledger.Identity, msg []byte, sig []byte) error
}

// Strict re-checks everything it receives. Verifier may be nil, in which
// case signatures are not checked.
type Strict struct {
	Verifier SignatureVerifier
}

func (s Strict) ValidateProof(candidate ledger.Block, nonce string, digest string, difficulty uint) error {
	if expected := candidate.Digest(nonce); expected != digest {
		return fmt.Errorf("%w: digest %s does not match nonce %q", ErrRejected, digest, nonce)
	}
	if !ledger.MeetsDifficulty(digest, difficulty) {
		return fmt.Errorf("%w: digest %s does not meet difficulty %d", ErrRejected, digest, difficulty)
	}
	return nil
}

func (s Strict) ValidateBlock(l *ledger.Ledger, b ledger.Block) error {
	if b.PreviousHash != l.LastHash() {
		return fmt.Errorf("%w: block links to %q instead of %q", ErrRejected, b.PreviousHash, l.LastHash())
	}
	return s.checkBlock(b, l.Difficulty())
}

func (s Strict) ValidateChain(c ledger.Chain) error {
	if len(c.Blocks) > 0 && c.Blocks[0].PreviousHash != "" {
		return fmt.Errorf("%w: genesis block has previous hash %q", ErrRejected, c.Blocks[0].PreviousHash)
	}
	if err := ledger.FromChain(c).Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	for i, b := range c.Blocks {
		if err := s.checkBlock(b, c.Difficulty); err != nil {
			return fmt.Errorf("block %d: %w", i+1, err)
		}
	}
	return nil
}

func (s Strict) checkBlock(b ledger.Block, difficulty uint) error {
	if len(b.Transactions) > ledger.MaxTransactions {
		return fmt.Errorf("%w: %d transactions", ErrRejected, len(b.Transactions))
	}
	if err := s.ValidateProof(b, b.Nonce, b.Digest(b.Nonce), difficulty); err != nil {
		return err
	}
	if s.Verifier == nil {
		return nil
	}
	for i, tx := range b.Transactions {
		msg, err := tx.SigningBytes()
		if err != nil {
			return err
		}
		if err := s.Verifier.Verify(tx.Sender, msg, tx.Signature); err != nil {
			return fmt.Errorf("%w: transaction %d: %v", ErrRejected, i, err)
		}
	}
	return nil
}
