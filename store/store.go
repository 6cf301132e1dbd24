// Package store defines the operation store interface (C4) and its
// reference implementations: an in-memory store for tests and
// single-process use, and an Azure Blob Storage backed store for durable
// persistence.
package store

import (
	"context"
	"errors"

	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
	"github.com/datatrails/groveauth/operation"
)

// ErrNotFound is returned by GetOperation/LatestOperation when no matching
// operation exists.
var ErrNotFound = errors.New("store: operation not found")

// LogKey identifies one author's log.
type LogKey struct {
	Author identity.PublicKey
	LogID  operation.LogID
}

// LogHeight reports the height of one (author, log_id), that is its
// latest seq_num + 1, as returned by LogHeights (spec §4.4) and
// exchanged during sync height negotiation (spec §4.9 phase 2).
type LogHeight struct {
	Author identity.PublicKey
	LogID  operation.LogID
	SeqNum uint64
}

// LogFilter narrows LogHeights to a subset of authors; a nil/empty
// Authors selects every log known to the store.
type LogFilter struct {
	Authors []identity.PublicKey
}

// Store is the abstract operation store every higher layer (ingest,
// group CRDT, sync) depends on (spec §4.4). Implementations must provide
// read-after-write consistency for a single-threaded caller (spec §4.4);
// concurrent callers are serialized by the implementation (spec §5: "a
// single interior-mutable cell with a runtime assertion of
// non-reentrancy").
type Store interface {
	// HasOperation reports whether hash is already stored.
	HasOperation(ctx context.Context, hash hashing.Hash) (bool, error)

	// InsertOperation persists op. Inserting an already-stored hash is a
	// no-op (idempotent), matching the ingest pipeline's replay-safety
	// requirement (spec §4.6 step 2).
	InsertOperation(ctx context.Context, op operation.Operation) error

	// GetOperation retrieves a previously stored operation by hash.
	GetOperation(ctx context.Context, hash hashing.Hash) (operation.Operation, error)

	// GetBySeqNum retrieves a previously stored operation by its
	// (author, log_id, seq_num) address, as needed by the sync
	// protocol's data phase (spec §4.9 phase 3) to stream a contiguous
	// range of a peer's missing operations.
	GetBySeqNum(ctx context.Context, author identity.PublicKey, logID operation.LogID, seqNum uint64) (operation.Operation, error)

	// LatestOperation retrieves the highest-seq_num operation in the given
	// author's log, or ErrNotFound if the log is empty.
	LatestOperation(ctx context.Context, author identity.PublicKey, logID operation.LogID) (operation.Operation, error)

	// DeleteOperations physically removes every operation in the given
	// log with seq_num <= upToSeqNum (spec §4.4 "physical prune").
	DeleteOperations(ctx context.Context, author identity.PublicKey, logID operation.LogID, upToSeqNum uint64) error

	// LogHeights reports the current height (latest seq_num + 1) of every
	// log matching filter.
	LogHeights(ctx context.Context, filter LogFilter) ([]LogHeight, error)
}
