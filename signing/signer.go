// Package signing provides the key pairs and signatures used to create
// transactions. The ledger treats both as opaque values.
package signing

import (
	"encoding/hex"
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/sign/schnorr"
	"go.dedis.ch/kyber/v4/suites"
	"go.dedis.ch/kyber/v4/util/key"

	"github.com/luca-patrignani/multichain/ledger"
)

var suite suites.Suite = suites.MustFind("Ed25519")

// KeyPair holds a client's keys. The private half never leaves the
// process that generated it.
type KeyPair struct {
	Private kyber.Scalar
	Public  kyber.Point
}

// Schnorr signs with Schnorr signatures over Ed25519.
type Schnorr struct{}

func NewSchnorr() Schnorr { return Schnorr{} }

func (Schnorr) GenerateKeyPair() (KeyPair, error) {
	pair := key.NewKeyPair(suite)
	return KeyPair{Private: pair.Private, Public: pair.Public}, nil
}

func (Schnorr) Sign(private kyber.Scalar, msg []byte) ([]byte, error) {
	sig, err := schnorr.Sign(suite, private, msg)
	if err != nil {
		return nil, fmt.Errorf("could not sign message: %w", err)
	}
	return sig, nil
}

// Identity is the hex encoding of the marshalled public key.
func (Schnorr) Identity(public kyber.Point) (ledger.Identity, error) {
	b, err := public.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("could not marshal public key: %w", err)
	}
	return ledger.Identity(hex.EncodeToString(b)), nil
}

// Verify checks sig against the public key named by identity.
func (Schnorr) Verify(identity ledger.Identity, msg []byte, sig []byte) error {
	b, err := hex.DecodeString(string(identity))
	if err != nil {
		return fmt.Errorf("malformed identity: %w", err)
	}
	public := suite.Point()
	if err := public.UnmarshalBinary(b); err != nil {
		return fmt.Errorf("identity is not a public key: %w", err)
	}
	return schnorr.Verify(suite, public, msg, sig)
}
