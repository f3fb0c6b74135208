package network

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
)

const (
	// AnySource matches a message from any member of the communicator.
	AnySource = -1
	// AnyTag matches any user tag. Collective traffic is never matched.
	AnyTag = -1

	collectiveTag = -2
)

// Envelope is the unit moved by a Transport.
type Envelope struct {
	Comm    string `msgpack:"comm"`
	Source  int    `msgpack:"source"`
	Tag     int    `msgpack:"tag"`
	Seq     uint64 `msgpack:"seq"`
	Payload []byte `msgpack:"payload"`
	// Sender and Serial number the envelopes a Peer posts to one
	// destination, starting from 1. Zero is never deduplicated.
	Sender int    `msgpack:"sender"`
	Serial uint64 `msgpack:"serial,omitempty"`
}

// Message is a point-to-point message handed to the caller of Recv.
type Message struct {
	Source  int
	Tag     int
	Payload []byte
}

func encodeEnvelope(e Envelope) ([]byte, error) {
	b, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("could not encode envelope: %w", err)
	}
	return b, nil
}

func decodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("could not decode envelope of %d bytes: %w", len(b), err)
	}
	return e, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
