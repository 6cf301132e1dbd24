package group

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datatrails/groveauth/access"
	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
	"github.com/datatrails/groveauth/logging"
	"github.com/datatrails/groveauth/operation"
	"github.com/datatrails/groveauth/orderer"
	"github.com/datatrails/groveauth/store"
	"go.uber.org/zap"
)

// Group ties a group's live State to the log-operation machinery: it
// authors new control-message operations (Prepare) and feeds received
// operations through the partial-order queue into the CRDT (Process),
// implementing spec §4.8's `prepare`/`process` pair. One Group value
// corresponds to one `log_id` dedicated to a single group's control
// messages; any member holding Manage access may author operations
// into it from their own per-author log.
type Group[C access.Condition[C]] struct {
	logID operation.LogID

	state      *State[C]
	order      *orderer.PartialOrder[hashing.Hash]
	pendingOps map[hashing.Hash]operation.Operation

	log *zap.SugaredLogger
}

// NewGroup creates a Group for the given log_id, using dir to resolve
// any nested GroupMember references.
func NewGroup[C access.Condition[C]](logID operation.LogID, dir *Directory[C]) *Group[C] {
	return &Group[C]{
		logID:      logID,
		state:      NewState[C](dir),
		order:      orderer.New[hashing.Hash](),
		pendingOps: make(map[hashing.Hash]operation.Operation),
		log:        logging.Named("group"),
	}
}

// State returns the group's live CRDT view.
func (g *Group[C]) State() *State[C] {
	return g.state
}

// LogID returns the log_id this group's control messages are authored
// under.
func (g *Group[C]) LogID() operation.LogID {
	return g.logID
}

// Prepare builds and signs the next operation for action, authored by
// author, with `previous` set to the group's current heads. It does
// not apply the action to state; call Process with the result (or
// with whatever decoded operation a peer eventually receives for this
// hash) to do that.
func (g *Group[C]) Prepare(ctx context.Context, st store.Store, author identity.KeyPair, action Action[C]) (operation.Operation, error) {
	body, err := operation.Marshal(action)
	if err != nil {
		return operation.Operation{}, fmt.Errorf("group: encoding action: %w", err)
	}

	pk := author.PublicKey()
	var seqNum uint64
	var backlink *hashing.Hash

	latest, err := st.LatestOperation(ctx, pk, g.logID)
	switch {
	case err == nil:
		seqNum = latest.Header.SeqNum + 1
		h := latest.Hash
		backlink = &h
	case errors.Is(err, store.ErrNotFound):
		seqNum = 0
	default:
		return operation.Operation{}, fmt.Errorf("group: loading latest operation: %w", err)
	}

	op, err := operation.New(operation.NewParams{
		Author:    author,
		SeqNum:    seqNum,
		Backlink:  backlink,
		Previous:  g.state.Heads(),
		Timestamp: uint64(time.Now().Unix()),
		LogID:     g.logID,
		Body:      body,
	})
	if err != nil {
		return operation.Operation{}, fmt.Errorf("group: constructing operation: %w", err)
	}
	return op, nil
}

// DecodeAction decodes a group control message from an operation's
// body.
func DecodeAction[C access.Condition[C]](body []byte) (Action[C], error) {
	var action Action[C]
	if err := operation.Unmarshal(body, &action); err != nil {
		return Action[C]{}, fmt.Errorf("group: decoding action: %w", err)
	}
	return action, nil
}

// Process feeds op into the group's partial-order queue keyed by
// op.Hash with dependencies op.Header.Previous, then applies every
// operation the queue now reports ready, in FIFO emission order, per
// spec §4.8. It returns the Outcome of applying op itself; operations
// that become ready as a side effect (because op unblocked them) are
// applied silently, same as they would be on first arrival.
func (g *Group[C]) Process(op operation.Operation) (Outcome, error) {
	g.pendingOps[op.Hash] = op
	g.order.Process(op.Hash, op.Header.Previous)

	var opOutcome Outcome
	var opErr error
	sawOp := false

	for {
		h, ok := g.order.TakeNextReady()
		if !ok {
			break
		}
		ready, ok := g.pendingOps[h]
		if !ok {
			// Dependency satisfied for a hash this Group was never
			// given the payload for (e.g. referenced only as another
			// group's causal dependency); nothing to apply.
			continue
		}
		delete(g.pendingOps, h)

		action, err := DecodeAction[C](ready.Body)
		if err != nil {
			g.log.Debugf("group: discarding operation %s with undecodable body: %v", h, err)
			if h == op.Hash {
				sawOp, opOutcome, opErr = true, Discarded, err
			}
			continue
		}

		outcome, err := g.state.Apply(ready.Hash, ready.Header.Previous, ready.Header.PublicKey, action)
		if outcome == Unauthorized {
			g.log.Warnf("group: unauthorized action %s by %s ignored as no-op", action.Kind, ready.Header.PublicKey)
		}
		if h == op.Hash {
			sawOp, opOutcome, opErr = true, outcome, err
		}
	}

	if !sawOp {
		// op's dependencies are not all satisfied yet; it is buffered
		// in the orderer and will be applied once they arrive.
		return NoOp, nil
	}
	return opOutcome, opErr
}
