package network

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// runWorld runs f once per endpoint of a fresh hub, each in its own goroutine.
func runWorld(t *testing.T, n int, f func(c *Comm) error) *Hub {
	t.Helper()
	hub := NewHub(n, 10*time.Second)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		c := NewWorld(hub.Endpoint(i))
		g.Go(func() error { return f(c) })
	}
	require.NoError(t, g.Wait())
	return hub
}

func TestHubAllGather(t *testing.T) {
	n := 5
	runWorld(t, n, func(c *Comm) error {
		recv, err := c.AllGather([]byte(strconv.Itoa(c.Rank())))
		if err != nil {
			return err
		}
		for j := 0; j < n; j++ {
			if string(recv[j]) != strconv.Itoa(j) {
				return fmt.Errorf("rank %d: expected %d at %d, got %s", c.Rank(), j, j, recv[j])
			}
		}
		return nil
	})
}

func TestHubGather(t *testing.T) {
	n := 4
	root := 2
	runWorld(t, n, func(c *Comm) error {
		recv, err := c.Gather([]byte{byte(c.Rank())}, root)
		if err != nil {
			return err
		}
		if c.Rank() != root {
			if recv != nil {
				return fmt.Errorf("rank %d: non-root must not receive, got %v", c.Rank(), recv)
			}
			return nil
		}
		for j := 0; j < n; j++ {
			if recv[j][0] != byte(j) {
				return fmt.Errorf("root: expected %d, got %v", j, recv[j])
			}
		}
		return nil
	})
}

func TestHubConsecutiveBroadcastsDoNotMix(t *testing.T) {
	n := 3
	runWorld(t, n, func(c *Comm) error {
		for round := 0; round < 10; round++ {
			root := round % n
			recv, err := c.Broadcast([]byte(fmt.Sprintf("%d-%d", round, c.Rank())), root)
			if err != nil {
				return err
			}
			if want := fmt.Sprintf("%d-%d", round, root); string(recv) != want {
				return fmt.Errorf("rank %d round %d: expected %s, got %s", c.Rank(), round, want, recv)
			}
		}
		return nil
	})
}

func TestHubBarrier(t *testing.T) {
	n := 6
	clocks := make(chan int, 2*n)
	runWorld(t, n, func(c *Comm) error {
		time.Sleep(time.Millisecond * 10 * time.Duration(c.Rank()))
		clocks <- 0
		if err := c.Barrier(); err != nil {
			return err
		}
		clocks <- 1
		return nil
	})
	close(clocks)
	prev := 0
	for clock := range clocks {
		if prev > clock {
			t.Fatalf("clocks out of sync: prev %d, time %d", prev, clock)
		}
		prev = clock
	}
}

func TestHubSplit(t *testing.T) {
	n := 7
	groups := 3
	runWorld(t, n, func(c *Comm) error {
		sub, err := c.Split(c.Rank()%groups, c.Rank())
		if err != nil {
			return err
		}
		wantSize := (n - c.Rank()%groups + groups - 1) / groups
		if sub.Size() != wantSize {
			return fmt.Errorf("rank %d: expected group size %d, got %d", c.Rank(), wantSize, sub.Size())
		}
		if sub.Rank() != c.Rank()/groups {
			return fmt.Errorf("rank %d: expected local rank %d, got %d", c.Rank(), c.Rank()/groups, sub.Rank())
		}
		if sub.WorldRank(sub.Rank()) != c.Rank() {
			return fmt.Errorf("rank %d: world rank mapping broken", c.Rank())
		}
		recv, err := sub.AllGather([]byte{byte(c.Rank())})
		if err != nil {
			return err
		}
		for j, b := range recv {
			if int(b[0])%groups != c.Rank()%groups || int(b[0]) != sub.WorldRank(j) {
				return fmt.Errorf("rank %d: foreign member %d in group", c.Rank(), b[0])
			}
		}
		return sub.Barrier()
	})
}

func TestHubSendRecvOrderAndTags(t *testing.T) {
	hub := NewHub(2, time.Second)
	a, b := NewWorld(hub.Endpoint(0)), NewWorld(hub.Endpoint(1))
	require.NoError(t, a.Send([]byte("first"), 1, 1))
	require.NoError(t, a.Send([]byte("other"), 1, 2))
	require.NoError(t, a.Send([]byte("second"), 1, 1))

	require.True(t, b.Probe(AnySource, AnyTag))
	require.False(t, b.Probe(1, AnyTag))

	msg, err := b.Recv(0, 1)
	require.NoError(t, err)
	require.Equal(t, "first", string(msg.Payload))
	msg, err = b.Recv(AnySource, 1)
	require.NoError(t, err)
	require.Equal(t, "second", string(msg.Payload))
	msg, err = b.Recv(AnySource, AnyTag)
	require.NoError(t, err)
	require.Equal(t, 2, msg.Tag)
	require.False(t, b.Probe(AnySource, AnyTag))

	require.Error(t, a.Send(nil, 1, -3))
	require.Error(t, a.Send(nil, 2, 0))
}

func TestHubPayloadIsCopied(t *testing.T) {
	hub := NewHub(2, time.Second)
	a, b := NewWorld(hub.Endpoint(0)), NewWorld(hub.Endpoint(1))
	data := []byte("ledger")
	require.NoError(t, a.Send(data, 1, 0))
	data[0] = 'X'
	msg, err := b.Recv(0, 0)
	require.NoError(t, err)
	require.Equal(t, "ledger", string(msg.Payload))
}

func TestHubRecvTimeout(t *testing.T) {
	hub := NewHub(2, 50*time.Millisecond)
	_, err := NewWorld(hub.Endpoint(0)).Recv(1, 0)
	require.True(t, errors.Is(err, ErrTimeout), "expected timeout, got %v", err)
}

func TestHubRecvAfterClose(t *testing.T) {
	hub := NewHub(2, 0)
	c := NewWorld(hub.Endpoint(1))
	done := make(chan error)
	go func() {
		_, err := c.Recv(0, 0)
		done <- err
	}()
	require.NoError(t, hub.Close())
	err := <-done
	require.True(t, errors.Is(err, ErrClosed), "expected closed, got %v", err)
}
