package network

import "sync"

// dedup remembers which serials each sender already delivered.
type dedup struct {
	mu      sync.Mutex
	senders map[int]*serials
}

// serials holds every serial below next, plus the ones in ahead.
type serials struct {
	next  uint64
	ahead map[uint64]struct{}
}

func newDedup() *dedup {
	return &dedup{senders: make(map[int]*serials)}
}

// first reports whether serial from sender is seen for the first time and
// records it.
func (d *dedup) first(sender int, serial uint64) bool {
	if serial == 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.senders[sender]
	if !ok {
		s = &serials{next: 1, ahead: make(map[uint64]struct{})}
		d.senders[sender] = s
	}
	if serial < s.next {
		return false
	}
	if _, ok := s.ahead[serial]; ok {
		return false
	}
	s.ahead[serial] = struct{}{}
	for {
		if _, ok := s.ahead[s.next]; !ok {
			break
		}
		delete(s.ahead, s.next)
		s.next++
	}
	return true
}
