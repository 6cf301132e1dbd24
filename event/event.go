// Package event defines the host-facing notifications emitted by the
// sync protocol and the ingest/CRDT layers (spec §6, §7). There is no
// direct analogue in the teacher codebase — it is a batch-oriented log
// library with no network layer of its own — so these types follow the
// same sentinel/structured split the teacher uses for errors
// (massifs/cose's mix of sentinel errors and structured `*Err...`
// types): a small Kind enum for cheap switch/logging, plus one struct
// per variant carrying its own fields.
package event

import "fmt"

// Kind discriminates the NetworkEvent variants of spec §6.
type Kind int

const (
	KindRelay Kind = iota
	KindTransport
	KindSyncStarted
	KindSyncProgress
	KindSyncCompleted
	KindSyncFailed
)

func (k Kind) String() string {
	switch k {
	case KindRelay:
		return "Relay"
	case KindTransport:
		return "Transport"
	case KindSyncStarted:
		return "SyncStarted"
	case KindSyncProgress:
		return "SyncProgress"
	case KindSyncCompleted:
		return "SyncCompleted"
	case KindSyncFailed:
		return "SyncFailed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is implemented by every NetworkEvent variant.
type Event interface {
	Kind() Kind
	String() string
}

// Relay reports a change in relay/transport connectivity status, not
// tied to any particular sync session.
type Relay struct {
	Status string
}

func (Relay) Kind() Kind      { return KindRelay }
func (e Relay) String() string { return fmt.Sprintf("relay: %s", e.Status) }

// Transport carries a free-form transport-level informational message
// (e.g. a peer connected or disconnected).
type Transport struct {
	Info string
}

func (Transport) Kind() Kind      { return KindTransport }
func (e Transport) String() string { return fmt.Sprintf("transport: %s", e.Info) }

// SyncStarted reports that a sync session for topic with peer has begun
// (spec §4.9 phase 1 completing successfully).
type SyncStarted struct {
	Topic string
	Peer  string
}

func (SyncStarted) Kind() Kind { return KindSyncStarted }
func (e SyncStarted) String() string {
	return fmt.Sprintf("sync started: topic=%s peer=%s", e.Topic, e.Peer)
}

// SyncProgress reports operations sent/received so far during the data
// phase (spec §4.9 phase 3).
type SyncProgress struct {
	Topic    string
	Peer     string
	Sent     uint64
	Received uint64
}

func (SyncProgress) Kind() Kind { return KindSyncProgress }
func (e SyncProgress) String() string {
	return fmt.Sprintf("sync progress: topic=%s peer=%s sent=%d received=%d", e.Topic, e.Peer, e.Sent, e.Received)
}

// SyncCompleted reports a clean session close (spec §4.9 phase 4).
type SyncCompleted struct {
	Topic string
	Peer  string
}

func (SyncCompleted) Kind() Kind { return KindSyncCompleted }
func (e SyncCompleted) String() string {
	return fmt.Sprintf("sync completed: topic=%s peer=%s", e.Topic, e.Peer)
}

// SyncFailed reports a session torn down on error. Topic is empty when
// the failure happened before the handshake resolved one (spec §6:
// "topic?").
type SyncFailed struct {
	Topic  string
	Peer   string
	Reason error
}

func (SyncFailed) Kind() Kind { return KindSyncFailed }
func (e SyncFailed) String() string {
	return fmt.Sprintf("sync failed: topic=%q peer=%s reason=%v", e.Topic, e.Peer, e.Reason)
}
