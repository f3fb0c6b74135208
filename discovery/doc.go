// Package discovery finds the other processes of a world on the local
// network with UDP multicast.
//
// Every process announces its rank and the address it listens on to
// 239.0.0.1 on a shared port, and collects the announcements of the
// others until the address book is complete:
//
//	book, err := discovery.AddressBook(ctx, 53552, discovery.Announcement{
//		Rank:    rank,
//		Address: listener.Addr().String(),
//	}, processes, time.Second)
//
// Each instance tags its packets with a random 8-byte key to filter out
// its own announcements.
package discovery
