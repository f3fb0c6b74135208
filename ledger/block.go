package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxTransactions is the maximum number of transactions in a block.
const MaxTransactions = 3

var ErrTooManyTransactions = errors.New("too many transactions for one block")

// Identity names a participant. It is derived from a public key by the
// signing collaborator and never interpreted by the ledger.
type Identity string

// Short returns a prefix of the identity suitable for display.
func (id Identity) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// Client is a participant of the group's transactions.
type Client struct {
	Identity    Identity `cbor:"identity" json:"identity"`
	DisplayName string   `cbor:"display_name" json:"display_name"`
}

func (c Client) Equal(other Client) bool {
	return c.Identity == other.Identity && c.DisplayName == other.DisplayName
}

type ValueKind uint8

const (
	IntValue ValueKind = iota + 1
	BoolValue
	FloatValue
)

func (k ValueKind) String() string {
	switch k {
	case IntValue:
		return "int"
	case BoolValue:
		return "bool"
	case FloatValue:
		return "float"
	default:
		return "unknown"
	}
}

func parseValueKind(s string) (ValueKind, error) {
	switch s {
	case "int":
		return IntValue, nil
	case "bool":
		return BoolValue, nil
	case "float":
		return FloatValue, nil
	}
	return 0, fmt.Errorf("unknown value kind %q", s)
}

// Value is the payload of a transaction: an int, a bool or a float.
type Value struct {
	Kind  ValueKind `cbor:"kind"`
	Int   int64     `cbor:"int,omitempty"`
	Bool  bool      `cbor:"bool,omitempty"`
	Float float64   `cbor:"float,omitempty"`
}

func IntOf(v int64) Value { return Value{Kind: IntValue, Int: v} }

func BoolOf(v bool) Value { return Value{Kind: BoolValue, Bool: v} }

func FloatOf(v float64) Value { return Value{Kind: FloatValue, Float: v} }

func (v Value) String() string {
	switch v.Kind {
	case IntValue:
		return strconv.FormatInt(v.Int, 10)
	case BoolValue:
		return strconv.FormatBool(v.Bool)
	case FloatValue:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return "<invalid>"
	}
}

type jsonValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var raw []byte
	var err error
	switch v.Kind {
	case IntValue:
		raw, err = json.Marshal(v.Int)
	case BoolValue:
		raw, err = json.Marshal(v.Bool)
	case FloatValue:
		raw, err = json.Marshal(v.Float)
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %d", v.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonValue{Kind: v.Kind.String(), Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	kind, err := parseValueKind(jv.Kind)
	if err != nil {
		return err
	}
	*v = Value{Kind: kind}
	switch kind {
	case IntValue:
		return json.Unmarshal(jv.Value, &v.Int)
	case BoolValue:
		return json.Unmarshal(jv.Value, &v.Bool)
	default:
		return json.Unmarshal(jv.Value, &v.Float)
	}
}

// Transaction is created once by the group leader and replicated
// read-only to the other members.
type Transaction struct {
	Sender     Identity `cbor:"sender"`
	SenderName string   `cbor:"sender_name"`
	Recipient  Identity `cbor:"recipient"`
	Value      Value    `cbor:"value"`
	// CreatedAt is in unix nanoseconds.
	CreatedAt int64  `cbor:"created_at"`
	Signature []byte `cbor:"signature,omitempty"`
}

// SigningBytes returns the canonical encoding of the transaction with the
// signature cleared, i.e. the bytes the sender signs.
func (t Transaction) SigningBytes() ([]byte, error) {
	t.Signature = nil
	return Encode(t)
}

// Block groups transactions. Height is assigned by the ledger on append.
type Block struct {
	Transactions []Transaction `cbor:"transactions"`
	PreviousHash string        `cbor:"previous_hash"`
	Nonce        string        `cbor:"nonce"`
	Height       uint64        `cbor:"height"`
}

// NewBlock returns a candidate block linked to previousHash.
func NewBlock(previousHash string, txs []Transaction) (Block, error) {
	if len(txs) > MaxTransactions {
		return Block{}, fmt.Errorf("%w: %d > %d", ErrTooManyTransactions, len(txs), MaxTransactions)
	}
	return Block{
		Transactions: append([]Transaction(nil), txs...),
		PreviousHash: previousHash,
	}, nil
}

type hashPayload struct {
	Transactions []Transaction `cbor:"transactions"`
	PreviousHash string        `cbor:"previous_hash"`
}

// Hash is the hex SHA-256 of the block's transactions and previous hash.
// Nonce and height are not covered.
func (b Block) Hash() string {
	payload := hashPayload{PreviousHash: b.PreviousHash}
	if len(b.Transactions) > 0 {
		payload.Transactions = b.Transactions
	}
	data, _ := Encode(payload)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Digest is the proof-of-work digest of the block for nonce.
func (b Block) Digest(nonce string) string {
	return digest(b.Hash(), nonce)
}

func digest(hash string, nonce string) string {
	sum := sha256.Sum256([]byte(hash + nonce))
	return hex.EncodeToString(sum[:])
}

// DigestOf is Digest for a precomputed block hash.
func DigestOf(hash string, nonce string) string {
	return digest(hash, nonce)
}

// MeetsDifficulty reports whether digest starts with difficulty '0's.
func MeetsDifficulty(digest string, difficulty uint) bool {
	if uint(len(digest)) < difficulty {
		return false
	}
	return strings.Count(digest[:difficulty], "0") == int(difficulty)
}
