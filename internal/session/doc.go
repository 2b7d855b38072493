// Package session owns the single authenticated channel to the messaging
// network.
//
// Ownership boundary:
// - connection lifecycle and reconnect policy
//
// - pairing challenge exposure
//
// - credential material persistence
//
// The Manager is the sole writer of session state. The transport adapter
// reports what happened on the wire through an event channel consumed by
// one state-owning goroutine; everything else reads snapshots via Status.
//
// The wire protocol itself lives behind the Transport interface and is not
// implemented here.
package session
