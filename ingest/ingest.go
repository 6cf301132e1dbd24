// Package ingest implements the ingest pipeline (C6): validating incoming
// operations, detecting missing causal prerequisites, and persisting
// operations once they can be accepted.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/logging"
	"github.com/datatrails/groveauth/operation"
	"github.com/datatrails/groveauth/store"
)

// Status is the outcome of a single ingest attempt (spec §4.6).
type Status int

const (
	// Complete means op was validated and persisted (or was already
	// stored — ingest is idempotent).
	Complete Status = iota
	// Retry means op is well-formed but some causal prerequisite is not
	// yet known locally; the caller should buffer and retry later.
	Retry
)

// Outcome is the result of Ingest.
type Outcome struct {
	Status    Status
	Operation operation.Operation
	// Missing is only meaningful when Status == Retry: the number of
	// causal prerequisites the caller is waiting on. That is the gap in
	// the author's log when the backlink check retries, and otherwise the
	// number of missing `previous` entries.
	Missing uint64
}

var log = logging.Named("ingest")

// Ingest runs the procedure from spec §4.6 against st for a single
// operation reconstructed from the wire (header bytes + optional body).
// It never blocks on network I/O; any out-of-order condition is reported
// via Outcome.Status == Retry rather than by waiting.
func Ingest(ctx context.Context, st store.Store, headerBytes []byte, body []byte) (Outcome, error) {
	op, err := operation.FromWire(headerBytes, body)
	if err != nil {
		return Outcome{}, fmt.Errorf("ingest: decoding operation: %w", err)
	}
	return IngestOperation(ctx, st, op)
}

// IngestOperation is Ingest for a caller that already has a decoded
// Operation (e.g. the local authoring path, which never goes through the
// wire).
func IngestOperation(ctx context.Context, st store.Store, op operation.Operation) (Outcome, error) {
	// Step 1: structural validation (version, signature, seq_num==0
	// implies no backlink, previous well-formed). Backlink existence
	// against the author's log (step 5) happens below once we know the
	// operation is new.
	if err := op.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := operation.VerifyBody(op.Header, op.Body); err != nil {
		return Outcome{}, err
	}

	// Step 2: replay safety — ingesting an already-stored operation
	// succeeds without reprocessing it (property 6).
	has, err := st.HasOperation(ctx, op.Hash)
	if err != nil {
		return Outcome{}, fmt.Errorf("ingest: checking store: %w", err)
	}
	if has {
		log.Debugf("operation %s already stored, replay is a no-op", op.Hash)
		return Outcome{Status: Complete, Operation: op}, nil
	}

	// Step 3: per-log sequencing, unless this operation is exempt via the
	// prune flag (a peer that has pruned its own history may receive
	// operations whose predecessors it deliberately never kept).
	if !op.Header.Extensions.Prune && op.Header.SeqNum > 0 {
		outcome, err := checkBacklink(ctx, st, op)
		if err != nil || outcome.Status == Retry {
			return outcome, err
		}
	}

	// Step 4: cross-log causal dependencies.
	missing, err := countMissing(ctx, st, op.Header.Previous)
	if err != nil {
		return Outcome{}, err
	}
	if missing > 0 {
		log.Debugf("operation %s missing %d causal dependencies, retry", op.Hash, missing)
		return Outcome{Status: Retry, Operation: op, Missing: missing}, nil
	}

	// Step 5: persist, pruning ancestors if requested.
	if err := st.InsertOperation(ctx, op); err != nil {
		return Outcome{}, fmt.Errorf("ingest: inserting operation: %w", err)
	}
	if op.Header.Extensions.Prune && op.Header.SeqNum > 0 {
		if err := st.DeleteOperations(ctx, op.Header.PublicKey, op.Header.Extensions.LogID, op.Header.SeqNum-1); err != nil {
			return Outcome{}, fmt.Errorf("ingest: pruning operations: %w", err)
		}
	}

	log.Debugf("operation %s ingested: author=%s seq=%d", op.Hash, op.Header.PublicKey, op.Header.SeqNum)
	return Outcome{Status: Complete, Operation: op}, nil
}

// checkBacklink implements spec §4.6 step 3.
func checkBacklink(ctx context.Context, st store.Store, op operation.Operation) (Outcome, error) {
	latest, err := st.LatestOperation(ctx, op.Header.PublicKey, op.Header.Extensions.LogID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// op claims to be its own author's genesis-or-later entry but
			// we have nothing for this author/log yet. Before treating
			// this as an ordinary "predecessor not seen yet", rule out a
			// forged backlink borrowed from a different author's log
			// (spec §8 S4's TooManyAuthors case).
			if err := verifyBacklinkAuthor(ctx, st, op); err != nil {
				return Outcome{}, err
			}
			return Outcome{Status: Retry, Operation: op, Missing: op.Header.SeqNum}, nil
		}
		return Outcome{}, fmt.Errorf("ingest: loading latest operation: %w", err)
	}

	expected := latest.Header.SeqNum + 1
	if expected < op.Header.SeqNum {
		return Outcome{Status: Retry, Operation: op, Missing: op.Header.SeqNum - expected}, nil
	}
	if expected > op.Header.SeqNum {
		// op's seq_num names a position we already hold under a different
		// hash (step 2 above already ruled out this being a replay of the
		// exact same operation), so this is a fork: a second, distinct
		// operation claiming the same predecessor (spec §8 S4).
		if err := verifyBacklinkAuthor(ctx, st, op); err != nil {
			return Outcome{}, err
		}
		return Outcome{}, operation.ErrBacklinkMismatch
	}

	if op.Header.Backlink == nil || *op.Header.Backlink != latest.Hash {
		return Outcome{}, operation.ErrBacklinkMismatch
	}

	return Outcome{Status: Complete, Operation: op}, nil
}

// verifyBacklinkAuthor returns ErrTooManyAuthors if op's backlink names an
// operation that exists locally but was authored by someone else — a
// backlink may only ever continue the signer's own log (spec §8 S4). A
// backlink target we don't have yet is not an error here; it is either a
// legitimate gap (handled by the Retry paths above) or will itself be
// rejected when it eventually arrives.
func verifyBacklinkAuthor(ctx context.Context, st store.Store, op operation.Operation) error {
	if op.Header.Backlink == nil {
		return nil
	}
	target, err := st.GetOperation(ctx, *op.Header.Backlink)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("ingest: loading backlink target: %w", err)
	}
	if target.Header.PublicKey != op.Header.PublicKey {
		return operation.ErrTooManyAuthors
	}
	return nil
}

func countMissing(ctx context.Context, st store.Store, previous []hashing.Hash) (uint64, error) {
	var missing uint64
	for _, h := range previous {
		has, err := st.HasOperation(ctx, h)
		if err != nil {
			return 0, fmt.Errorf("ingest: checking dependency %s: %w", h, err)
		}
		if !has {
			missing++
		}
	}
	return missing, nil
}
