package mempool

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"go.dedis.ch/kyber/v4"

	"github.com/luca-patrignani/multichain/ledger"
	"github.com/luca-patrignani/multichain/signing"
)

var ErrNotEnoughClients = errors.New("at least two clients are needed to create transactions")

// Signer creates client keys and signs their transactions.
type Signer interface {
	GenerateKeyPair() (signing.KeyPair, error)
	Sign(private kyber.Scalar, msg []byte) ([]byte, error)
	Identity(public kyber.Point) (ledger.Identity, error)
}

// Policy draws the value of a new transaction.
type Policy func(rng *rand.Rand) ledger.Value

// PolicyFor returns the value policy of a group: integers in [1, 10) for
// groups 0, 3, 6..., booleans for 1, 4, 7... and floats in [0, 1) for the
// others.
func PolicyFor(group int) Policy {
	switch group % 3 {
	case 0:
		return func(rng *rand.Rand) ledger.Value { return ledger.IntOf(1 + rng.Int64N(9)) }
	case 1:
		return func(rng *rand.Rand) ledger.Value { return ledger.BoolOf(rng.IntN(2) == 1) }
	default:
		return func(rng *rand.Rand) ledger.Value { return ledger.FloatOf(rng.Float64()) }
	}
}

// Population is what the leader of a group shares with its members: the
// public side of the clients and the transactions to mine, in order.
type Population struct {
	Clients []ledger.Client      `cbor:"clients"`
	Pending []ledger.Transaction `cbor:"pending"`
}

// Generator creates the population of a group. It only runs on the group
// leader.
type Generator struct {
	Signer Signer
	Rand   *rand.Rand
	Policy Policy
	// Now stamps transactions. Defaults to time.Now.
	Now func() time.Time
}

// Populate creates clients named "0" to "clients-1" and transactions
// between two distinct clients picked uniformly, each signed by its sender.
func (g Generator) Populate(clients int, transactions int) (Population, error) {
	if clients < 0 || transactions < 0 {
		return Population{}, fmt.Errorf("negative population: %d clients, %d transactions", clients, transactions)
	}
	if transactions > 0 && clients < 2 {
		return Population{}, fmt.Errorf("%w: got %d", ErrNotEnoughClients, clients)
	}
	now := g.Now
	if now == nil {
		now = time.Now
	}

	pop := Population{Clients: make([]ledger.Client, clients)}
	keys := make([]kyber.Scalar, clients)
	for i := range pop.Clients {
		pair, err := g.Signer.GenerateKeyPair()
		if err != nil {
			return Population{}, fmt.Errorf("could not create client %d: %w", i, err)
		}
		id, err := g.Signer.Identity(pair.Public)
		if err != nil {
			return Population{}, err
		}
		pop.Clients[i] = ledger.Client{Identity: id, DisplayName: strconv.Itoa(i)}
		keys[i] = pair.Private
	}

	pop.Pending = make([]ledger.Transaction, 0, transactions)
	for i := 0; i < transactions; i++ {
		sender := g.Rand.IntN(clients)
		recipient := g.Rand.IntN(clients - 1)
		if recipient >= sender {
			recipient++
		}
		tx := ledger.Transaction{
			Sender:     pop.Clients[sender].Identity,
			SenderName: pop.Clients[sender].DisplayName,
			Recipient:  pop.Clients[recipient].Identity,
			Value:      g.Policy(g.Rand),
			CreatedAt:  now().UnixNano(),
		}
		msg, err := tx.SigningBytes()
		if err != nil {
			return Population{}, err
		}
		if tx.Signature, err = g.Signer.Sign(keys[sender], msg); err != nil {
			return Population{}, fmt.Errorf("could not sign transaction %d: %w", i, err)
		}
		pop.Pending = append(pop.Pending, tx)
	}
	return pop, nil
}
