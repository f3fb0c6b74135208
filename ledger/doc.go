// Package ledger implements the append-only chain kept by every member of
// a group, together with the entities it records.
//
// # Core Components
//
// Ledger: one process's replica of its group's chain. Replicas converge
// through the block broadcast and the reconciliation protocol; they never
// share memory.
//
// Block: up to MaxTransactions transactions linked to the previous block by
// its hash. The hash covers the transactions and the previous hash only, so
// it can be computed before the nonce is mined and before the ledger
// assigns the height.
//
// Transaction: an immutable transfer between two clients whose value type
// is fixed per group.
//
// # Encoding
//
// Hashes, wire payloads and persisted records all use the canonical CBOR
// encoding from Encode, so a block hashes the same on every replica.
//
// # Security Properties
//
// Verify detects any modification of a block's transactions or previous
// hash that was not followed by re-linking the rest of the chain. Proofs
// of work and signatures are checked by the consensus validators, not here.
package ledger
