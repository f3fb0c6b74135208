package storage

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/cockroachdb/pebble"

	"github.com/luca-patrignani/multichain/ledger"
)

// PebbleStore keeps blocks in a pebble database, keyed by big-endian
// height so that iteration follows the chain.
type PebbleStore struct {
	db       *pebble.DB
	snapshot string
	logger   *slog.Logger
}

func OpenPebble(dir string, snapshot string, logger *slog.Logger) (*PebbleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("could not open pebble store at %s: %w", dir, err)
	}
	return &PebbleStore{db: db, snapshot: snapshot, logger: logger}, nil
}

func heightKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)
	return key
}

func (s *PebbleStore) Append(b ledger.Block) error {
	value, err := ledger.Encode(b)
	if err != nil {
		return err
	}
	if err := s.db.Set(heightKey(b.Height), value, pebble.Sync); err != nil {
		return fmt.Errorf("could not append block %d: %w", b.Height, err)
	}
	return nil
}

func (s *PebbleStore) ReadBounded(max int) ([]ledger.Block, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var blocks []ledger.Block
	for iter.First(); iter.Valid(); iter.Next() {
		if max > 0 && len(blocks) >= max {
			break
		}
		var b ledger.Block
		if err := ledger.Decode(iter.Value(), &b); err != nil {
			s.logger.Warn("stopping at unreadable block record", "key", fmt.Sprintf("%x", iter.Key()), "read", len(blocks), "error", err)
			break
		}
		blocks = append(blocks, b)
	}
	return blocks, iter.Error()
}

// Rewrite deletes every block and writes blocks in one batch.
func (s *PebbleStore) Rewrite(blocks []ledger.Block) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(heightKey(0), heightKey(math.MaxUint64), nil); err != nil {
		return err
	}
	// the end of a range is exclusive
	if err := batch.Delete(heightKey(math.MaxUint64), nil); err != nil {
		return err
	}
	for _, b := range blocks {
		value, err := ledger.Encode(b)
		if err != nil {
			return err
		}
		if err := batch.Set(heightKey(b.Height), value, nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("could not rewrite blocks: %w", err)
	}
	return nil
}

func (s *PebbleStore) WriteSnapshot(snapshot ledger.Snapshot) error {
	return writeSnapshot(s.snapshot, snapshot)
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
