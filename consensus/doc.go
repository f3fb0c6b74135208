// Package consensus keeps the replicas of one group's ledger in agreement.
//
// Agreement is reached by two protocols run over the group transport:
//
//   - Broadcaster moves a freshly mined block from the member that won the
//     round to every other member. Each member ends the round with exactly
//     one more block.
//   - Reconciler resolves divergent replicas before mining starts. The
//     member holding the longest ledger (lowest local rank on ties) sends it
//     to every member whose length differs, which replaces its replica.
//
// Whether a received block or chain is accepted is decided by a Validator.
// TrustAll accepts everything; Strict checks linkage, proof of work and
// transaction signatures.
package consensus
