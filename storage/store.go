// Package storage persists the ledger replica of one process.
//
// Each process owns its own files, namespaced by group and ranks:
//
//	<data dir>/blockchain_<group>/miner_<global rank>_<local rank>.<ext>
//
// Two backends keep the blocks: an append-only CBOR log (".log") and a
// pebble key-value store (".pebble"). At the end of a session the replica
// is also written as a JSON tree (".json") for inspection.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/luca-patrignani/multichain/ledger"
	"github.com/luca-patrignani/multichain/partition"
)

const (
	BackendFile   = "file"
	BackendPebble = "pebble"
)

// Store persists the blocks of one replica.
type Store interface {
	// Append persists one more block.
	Append(b ledger.Block) error
	// ReadBounded reads back at most max blocks from the start of the
	// replica, all of them if max <= 0. It stops at the first record it
	// cannot read and returns the blocks read so far.
	ReadBounded(max int) ([]ledger.Block, error)
	// Rewrite replaces every persisted block with blocks.
	Rewrite(blocks []ledger.Block) error
	// WriteSnapshot writes the JSON tree of the replica next to the store.
	WriteSnapshot(s ledger.Snapshot) error
	Close() error
}

// Dir is the directory of a group's replicas.
func Dir(dataDir string, group int) string {
	return filepath.Join(dataDir, fmt.Sprintf("blockchain_%d", group))
}

// Path is the path of a replica's file with the given extension.
func Path(dataDir string, m partition.Membership, ext string) string {
	name := fmt.Sprintf("miner_%d_%d.%s", m.GlobalRank, m.LocalRank, strings.TrimPrefix(ext, "."))
	return filepath.Join(Dir(dataDir, m.GroupID), name)
}

// Open creates the group directory if needed and opens the replica's store
// with the given backend.
func Open(backend string, dataDir string, m partition.Membership, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(Dir(dataDir, m.GroupID), 0o755); err != nil {
		return nil, fmt.Errorf("could not create output folder: %w", err)
	}
	snapshot := Path(dataDir, m, "json")
	switch backend {
	case BackendFile, "":
		return OpenFile(Path(dataDir, m, "log"), snapshot, logger)
	case BackendPebble:
		return OpenPebble(Path(dataDir, m, "pebble"), snapshot, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func writeSnapshot(path string, s ledger.Snapshot) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot reads a tree written by WriteSnapshot.
func ReadSnapshot(path string) (ledger.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s ledger.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("malformed snapshot %s: %w", path, err)
	}
	return s, nil
}
