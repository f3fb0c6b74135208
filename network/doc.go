// Package network provides the group transport used by the ledger
// processes. Every process owns one mailbox; messages carry the
// communicator they belong to, the sender's rank inside that
// communicator, a tag and, for collectives, a sequence number.
//
// # Core Components
//
// Peer: HTTP transport. Envelopes are msgpack encoded and POSTed to the
// destination's listener, optionally over TLS.
//
// Hub: in-process transport. Each Endpoint behaves like a separate process
// and only ever receives copies of the payloads sent to it.
//
// Comm: a communicator over either transport. The world communicator is
// created with NewWorld, subgroups with Split.
//
// # Communication Patterns
//
// Point-to-point: Send, blocking Recv and non-blocking Probe, matched by
// source and tag.
//
// Collectives: Broadcast, Gather, AllGather, Barrier and Split. Every
// member of a communicator must call them in the same order; a member that
// never calls stalls the others until the receive timeout, if any, expires.
package network
