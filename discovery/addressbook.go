package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Announcement is what a process tells its peers.
type Announcement struct {
	Rank    int    `json:"rank"`
	Address string `json:"address"`
}

// AddressBook announces self on port and waits until an address is known
// for every rank in [0, processes). Conflicting announcements for the same
// rank are an error.
func AddressBook(ctx context.Context, port uint16, self Announcement, processes int, interval time.Duration) (map[int]string, error) {
	if self.Rank < 0 || self.Rank >= processes {
		return nil, fmt.Errorf("rank %d out of range for %d processes", self.Rank, processes)
	}
	info, err := json.Marshal(self)
	if err != nil {
		return nil, err
	}
	d := &Discover{Info: info, Port: port, IntervalBetweenAnnouncements: interval}
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("could not start discovery: %w", err)
	}
	defer d.Close()

	book := map[int]string{self.Rank: self.Address}
	for len(book) < processes {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("found %d of %d processes: %w", len(book), processes, ctx.Err())
		case entry, ok := <-d.Entries:
			if !ok {
				return nil, fmt.Errorf("discovery stopped after %d of %d processes", len(book), processes)
			}
			var a Announcement
			if err := json.Unmarshal(entry.Info, &a); err != nil {
				d.Logger.Debug("ignoring foreign announcement", "error", err)
				continue
			}
			if a.Rank < 0 || a.Rank >= processes {
				continue
			}
			if known, ok := book[a.Rank]; ok && known != a.Address {
				return nil, fmt.Errorf("rank %d announced by both %s and %s", a.Rank, known, a.Address)
			}
			book[a.Rank] = a.Address
		}
	}
	// keep announcing for a while so that slower peers complete too
	select {
	case <-ctx.Done():
	case <-time.After(3 * interval):
	}
	return book, nil
}
