package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

const multicastIpAddress = "239.0.0.1"

const keyLength = 8

// Discover announces Info and listens for the announcements of its peers.
// Configure Info, Port and IntervalBetweenAnnouncements before calling
// Start; entries then arrive on Entries.
type Discover struct {
	Info                         []byte
	Port                         uint16
	IntervalBetweenAnnouncements time.Duration
	Logger                       *slog.Logger
	Entries                      chan Entry
	conn                         *net.UDPConn
	sendConn                     *net.UDPConn
	key                          []byte
	done                         chan struct{}
	closeOnce                    sync.Once
}

// Entry is an announcement received from a peer.
type Entry struct {
	Info []byte
	Time time.Time
}

// Start joins the multicast group and starts announcing and listening in
// the background.
func (d *Discover) Start() error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.IntervalBetweenAnnouncements <= 0 {
		d.IntervalBetweenAnnouncements = time.Second
	}
	d.Entries = make(chan Entry, 10)
	d.done = make(chan struct{})
	d.key = []byte(fmt.Sprintf("%08x", rand.Uint32()))
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", multicastIpAddress, d.Port))
	if err != nil {
		return err
	}
	d.conn, err = net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	d.sendConn, err = net.DialUDP("udp", nil, addr)
	if err != nil {
		d.conn.Close()
		return err
	}
	go d.listen()
	go d.announce()
	return nil
}

// Close stops announcing and listening.
func (d *Discover) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	var result *multierror.Error
	if err := d.conn.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := d.sendConn.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (d *Discover) listen() {
	defer close(d.Entries)
	buffer := make([]byte, 1024)
	for {
		n, _, err := d.conn.ReadFromUDP(buffer)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.Logger.Error("discovery listener stopped", "error", err)
			}
			return
		}
		if n < keyLength {
			continue
		}
		message := buffer[:n]
		if slices.Equal(message[:keyLength], d.key) {
			continue
		}
		select {
		case d.Entries <- Entry{Info: slices.Clone(message[keyLength:]), Time: time.Now()}:
		case <-d.done:
			return
		}
	}
}

func (d *Discover) announce() {
	packet := append(slices.Clone(d.key), d.Info...)
	for {
		if _, err := d.sendConn.Write(packet); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.Logger.Error("discovery announcer stopped", "error", err)
			}
			return
		}
		time.Sleep(d.IntervalBetweenAnnouncements)
	}
}
