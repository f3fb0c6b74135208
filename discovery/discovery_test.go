package discovery

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func multicastAvailable(t *testing.T, port uint16) {
	t.Helper()
	d := Discover{Port: port}
	if err := d.Start(); err != nil {
		t.Skipf("multicast not available: %v", err)
	}
	d.Close()
}

func TestAddressBook(t *testing.T) {
	multicastAvailable(t, 53554)
	n := 4
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	fatal := make(chan error)
	for i := range n {
		go func() {
			self := Announcement{Rank: i, Address: fmt.Sprintf("localhost:%d", 9000+i)}
			book, err := AddressBook(ctx, 53554, self, n, 100*time.Millisecond)
			if err != nil {
				fatal <- fmt.Errorf("node %d: %w", i, err)
				return
			}
			for j := range n {
				if book[j] != fmt.Sprintf("localhost:%d", 9000+j) {
					fatal <- fmt.Errorf("node %d: wrong address for %d: %q", i, j, book[j])
					return
				}
			}
			fatal <- nil
		}()
	}
	for range n {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func TestAddressBookTimesOut(t *testing.T) {
	multicastAvailable(t, 53555)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := AddressBook(ctx, 53555, Announcement{Rank: 0, Address: "localhost:1"}, 2, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout with a missing peer")
	}
}

func TestAddressBookRejectsRank(t *testing.T) {
	_, err := AddressBook(context.Background(), 53556, Announcement{Rank: 3}, 2, time.Second)
	if err == nil {
		t.Fatal("expected an error for a rank out of range")
	}
}
