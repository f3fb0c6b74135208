package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const envelopePath = "/envelope"

// Peer is the HTTP transport of one process.
// addresses[i] contains the address to reach the Peer with rank i.
type Peer struct {
	rank      int
	addresses map[int]string
	server    *http.Server
	client    *http.Client
	tlsConfig *tls.Config
	box       *mailbox
	seen      *dedup
	serialMu  sync.Mutex
	serials   map[int]uint64
	closed    chan struct{}
	closeOnce sync.Once
	timeout   time.Duration
	retry     time.Duration
	logger    *slog.Logger
}

// NewPeer starts serving on l and returns the transport of rank.
func NewPeer(rank int, addresses map[int]string, l net.Listener, opts ...PeerOption) *Peer {
	p := &Peer{
		rank:      rank,
		addresses: copyMap(addresses),
		client:    &http.Client{},
		box:       newMailbox(),
		seen:      newDedup(),
		serials:   make(map[int]uint64),
		closed:    make(chan struct{}),
		retry:     10 * time.Millisecond,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.server = &http.Server{Addr: addresses[rank], Handler: p}
	if p.tlsConfig != nil {
		l = tls.NewListener(l, p.tlsConfig)
	}
	go func() {
		err := p.server.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("peer server stopped", "rank", p.rank, "error", err)
		}
	}()
	return p
}

func (p *Peer) Rank() int { return p.rank }

func (p *Peer) Size() int { return len(p.addresses) }

// Addresses returns a copy of the world address book.
func (p *Peer) Addresses() map[int]string { return copyMap(p.addresses) }

func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.server.Shutdown(context.Background())
		p.client.CloseIdleConnections()
	})
	return err
}

func (p *Peer) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	select {
	case <-p.closed:
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	default:
	}
	if req.Method != http.MethodPost || req.URL.Path != envelopePath {
		rw.WriteHeader(http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		p.logger.Warn("could not read envelope", "rank", p.rank, "error", err)
		return
	}
	e, err := decodeEnvelope(body)
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		p.logger.Warn("dropping malformed envelope", "rank", p.rank, "remote", req.RemoteAddr, "error", err)
		return
	}
	if !p.seen.first(e.Sender, e.Serial) {
		// a retry of an envelope already queued
		rw.WriteHeader(http.StatusAccepted)
		p.logger.Debug("dropping duplicate envelope", "rank", p.rank, "sender", e.Sender, "serial", e.Serial)
		return
	}
	p.box.deliver(e)
	rw.WriteHeader(http.StatusAccepted)
}

// deliver POSTs the envelope to dest, retrying while the destination is
// not yet listening. With a timeout set the attempts stop after it.
// A request that timed out may still have been queued: the receiver drops
// the retry by its serial.
func (p *Peer) deliver(dest int, e Envelope) error {
	if dest == p.rank {
		e.Payload = cloneBytes(e.Payload)
		p.box.deliver(e)
		return nil
	}
	addr, ok := p.addresses[dest]
	if !ok {
		return fmt.Errorf("no address for rank %d", dest)
	}
	e.Sender = p.rank
	e.Serial = p.nextSerial(dest)
	body, err := encodeEnvelope(e)
	if err != nil {
		return err
	}
	url := p.scheme() + "://" + addr + envelopePath
	start := time.Now()
	for {
		select {
		case <-p.closed:
			return ErrClosed
		default:
		}
		status, err := p.post(url, body)
		if err == nil && status == http.StatusAccepted {
			return nil
		}
		if p.timeout > 0 && time.Since(start) > p.timeout {
			if err != nil {
				return fmt.Errorf("connection attempts to rank %d timed out with error %w", dest, err)
			}
			return fmt.Errorf("connection attempts to rank %d timed out with status code %d", dest, status)
		}
		time.Sleep(p.retry)
	}
}

func (p *Peer) nextSerial(dest int) uint64 {
	p.serialMu.Lock()
	defer p.serialMu.Unlock()
	p.serials[dest]++
	return p.serials[dest]
}

func (p *Peer) post(url string, body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/msgpack")
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	if err := resp.Body.Close(); err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

func (p *Peer) scheme() string {
	if p.tlsConfig != nil {
		return "https"
	}
	return "http"
}

func (p *Peer) inbox() *mailbox { return p.box }

func (p *Peer) done() <-chan struct{} { return p.closed }

func (p *Peer) recvTimeout() time.Duration { return p.timeout }

// CreateListeners opens n listeners on localhost and returns them with
// their addresses, indexed by rank.
func CreateListeners(n int) (map[int]net.Listener, map[int]string) {
	listeners := make(map[int]net.Listener)
	addresses := make(map[int]string)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			panic(err)
		}
		listeners[i] = l
		addresses[i] = l.Addr().String()
	}
	return listeners, addresses
}

func copyMap(original map[int]string) map[int]string {
	copied := make(map[int]string, len(original))
	for k, v := range original {
		copied[k] = v
	}
	return copied
}
