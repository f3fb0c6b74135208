package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/luca-patrignani/multichain/ledger"
)

// FileStore keeps blocks as a stream of CBOR records in one file.
type FileStore struct {
	mu       sync.Mutex
	path     string
	snapshot string
	logger   *slog.Logger
}

func OpenFile(path string, snapshot string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open block log: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &FileStore{path: path, snapshot: snapshot, logger: logger}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Append(b ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := ledger.EncMode().NewEncoder(f).Encode(b); err != nil {
		f.Close()
		return fmt.Errorf("could not append block %d: %w", b.Height, err)
	}
	return f.Close()
}

func (s *FileStore) ReadBounded(max int) ([]ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("no prior blockchain data found", "path", s.path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []ledger.Block
	dec := cbor.NewDecoder(f)
	for max <= 0 || len(blocks) < max {
		var b ledger.Block
		err := dec.Decode(&b)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Warn("stopping at unreadable block record", "path", s.path, "read", len(blocks), "error", err)
			break
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// Rewrite replaces the log atomically.
func (s *FileStore) Rewrite(blocks []ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := ledger.EncMode().NewEncoder(f)
	for _, b := range blocks {
		if err := enc.Encode(b); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("could not rewrite block %d: %w", b.Height, err)
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) WriteSnapshot(snapshot ledger.Snapshot) error {
	return writeSnapshot(s.snapshot, snapshot)
}

func (s *FileStore) Close() error { return nil }
