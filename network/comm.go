package network

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"
)

// Transport moves envelopes between the processes of a world.
// Implementations are Peer and Endpoint.
type Transport interface {
	// Rank is the world rank of this process.
	Rank() int
	// Size is the number of processes in the world.
	Size() int
	Close() error

	deliver(dest int, e Envelope) error
	inbox() *mailbox
	done() <-chan struct{}
	recvTimeout() time.Duration
}

// Comm is a communicator: an ordered set of processes that exchange
// point-to-point messages and take part in collectives together.
// A Comm is owned by a single goroutine.
type Comm struct {
	id        string
	rank      int
	members   []int
	transport Transport
	clock     uint64
}

// NewWorld returns the communicator spanning every process of t.
func NewWorld(t Transport) *Comm {
	members := make([]int, t.Size())
	for i := range members {
		members[i] = i
	}
	return &Comm{
		id:        "world",
		rank:      t.Rank(),
		members:   members,
		transport: t,
	}
}

// ID identifies the communicator; it is equal on every member.
func (c *Comm) ID() string { return c.id }

// Rank is the rank of this process inside the communicator.
func (c *Comm) Rank() int { return c.rank }

// Size is the number of members of the communicator.
func (c *Comm) Size() int { return len(c.members) }

// WorldRank maps a rank of this communicator to the world rank.
func (c *Comm) WorldRank(rank int) int { return c.members[rank] }

// Send delivers data to dest. It returns once the destination transport
// has queued the message and never waits for a matching Recv.
func (c *Comm) Send(data []byte, dest int, tag int) error {
	if tag < 0 {
		return fmt.Errorf("invalid tag %d: user tags must be non-negative", tag)
	}
	if dest < 0 || dest >= c.Size() {
		return fmt.Errorf("invalid destination %d for communicator of size %d", dest, c.Size())
	}
	return c.transport.deliver(c.members[dest], Envelope{
		Comm:    c.id,
		Source:  c.rank,
		Tag:     tag,
		Payload: cloneBytes(data),
	})
}

// Recv blocks until a message from source with the given tag arrives.
// source may be AnySource and tag may be AnyTag.
func (c *Comm) Recv(source int, tag int) (Message, error) {
	e, err := c.transport.inbox().wait(
		matcher{comm: c.id, source: source, tag: tag},
		c.transport.recvTimeout(),
		c.transport.done(),
	)
	if err != nil {
		return Message{}, fmt.Errorf("recv from %d with tag %d on %s: %w", source, tag, c.id, err)
	}
	return Message{Source: e.Source, Tag: e.Tag, Payload: e.Payload}, nil
}

// Probe reports whether a message from source with the given tag is
// waiting, without receiving it.
func (c *Comm) Probe(source int, tag int) bool {
	return c.transport.inbox().peek(matcher{comm: c.id, source: source, tag: tag})
}

// Broadcast sends data from root to every member. Every member returns
// the root's data.
func (c *Comm) Broadcast(data []byte, root int) ([]byte, error) {
	seq := c.tick()
	if root == c.rank {
		for i := range c.members {
			if i == c.rank {
				continue
			}
			if err := c.sendCollective(data, i, seq); err != nil {
				return nil, err
			}
		}
		return data, nil
	}
	return c.recvCollective(root, seq)
}

// Gather collects the data of every member at root. bufferRecv[i] holds
// the data of rank i on root and is nil elsewhere.
func (c *Comm) Gather(data []byte, root int) (bufferRecv [][]byte, err error) {
	seq := c.tick()
	if root != c.rank {
		return nil, c.sendCollective(data, root, seq)
	}
	bufferRecv = make([][]byte, c.Size())
	bufferRecv[c.rank] = data
	for i := range c.members {
		if i == c.rank {
			continue
		}
		if bufferRecv[i], err = c.recvCollective(i, seq); err != nil {
			return nil, err
		}
	}
	return bufferRecv, nil
}

// Each caller of AllGather sends data to every member.
// bufferRecv[i] will contain the value sent by the member with rank i.
// This function implicitly synchronizes the members.
func (c *Comm) AllGather(data []byte) (bufferRecv [][]byte, err error) {
	seq := c.tick()
	for i := range c.members {
		if i == c.rank {
			continue
		}
		if err := c.sendCollective(data, i, seq); err != nil {
			return nil, err
		}
	}
	bufferRecv = make([][]byte, c.Size())
	bufferRecv[c.rank] = data
	for i := range c.members {
		if i == c.rank {
			continue
		}
		if bufferRecv[i], err = c.recvCollective(i, seq); err != nil {
			return nil, err
		}
	}
	return bufferRecv, nil
}

// Barrier guarantees that no member leaves it until every member has
// entered it.
func (c *Comm) Barrier() error {
	_, err := c.AllGather(nil)
	return err
}

// Split partitions the communicator: members passing the same color end
// up in the same new communicator, ranked by key and then by their rank
// in c. It is a collective over c.
func (c *Comm) Split(color int, key int) (*Comm, error) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(int64(color)))
	binary.BigEndian.PutUint64(buf[8:], uint64(int64(key)))
	seq := c.clock + 1
	all, err := c.AllGather(buf)
	if err != nil {
		return nil, fmt.Errorf("split of %s: %w", c.id, err)
	}
	type candidate struct{ rank, key int }
	var same []candidate
	for rank, b := range all {
		if len(b) != 16 {
			return nil, fmt.Errorf("split of %s: malformed color from rank %d", c.id, rank)
		}
		if int(int64(binary.BigEndian.Uint64(b[:8]))) != color {
			continue
		}
		same = append(same, candidate{rank: rank, key: int(int64(binary.BigEndian.Uint64(b[8:])))})
	}
	sort.SliceStable(same, func(i, j int) bool {
		if same[i].key != same[j].key {
			return same[i].key < same[j].key
		}
		return same[i].rank < same[j].rank
	})
	sub := &Comm{
		id:        fmt.Sprintf("%s/%d.%d", c.id, seq, color),
		transport: c.transport,
		members:   make([]int, len(same)),
	}
	for i, m := range same {
		sub.members[i] = c.members[m.rank]
		if m.rank == c.rank {
			sub.rank = i
		}
	}
	return sub, nil
}

func (c *Comm) tick() uint64 {
	c.clock++
	return c.clock
}

func (c *Comm) sendCollective(data []byte, dest int, seq uint64) error {
	return c.transport.deliver(c.members[dest], Envelope{
		Comm:    c.id,
		Source:  c.rank,
		Tag:     collectiveTag,
		Seq:     seq,
		Payload: cloneBytes(data),
	})
}

func (c *Comm) recvCollective(source int, seq uint64) ([]byte, error) {
	e, err := c.transport.inbox().wait(
		matcher{comm: c.id, source: source, tag: collectiveTag, seq: seq},
		c.transport.recvTimeout(),
		c.transport.done(),
	)
	if err != nil {
		return nil, fmt.Errorf("collective %d on %s waiting for rank %d: %w", seq, c.id, source, err)
	}
	return e.Payload, nil
}
