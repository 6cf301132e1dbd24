package sync

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/groveauth/config"
	"github.com/datatrails/groveauth/event"
	"github.com/datatrails/groveauth/identity"
	"github.com/datatrails/groveauth/operation"
	"github.com/datatrails/groveauth/store"
)

func buildChain(t *testing.T, kp identity.KeyPair, logID operation.LogID, n int) []operation.Operation {
	t.Helper()
	ops := make([]operation.Operation, 0, n)
	var prev *operation.Operation
	for i := 0; i < n; i++ {
		params := operation.NewParams{
			Author:    kp,
			SeqNum:    uint64(i),
			Timestamp: uint64(i + 1),
			LogID:     logID,
			Body:      []byte{byte(i)},
		}
		if prev != nil {
			h := prev.Hash
			params.Backlink = &h
		}
		op, err := operation.New(params)
		require.NoError(t, err)
		ops = append(ops, op)
		prev = &ops[len(ops)-1]
	}
	return ops
}

// TestSyncEndToEnd covers scenario S7: two peers, each holding operations
// the other lacks, converge to the same set after one sync session.
func TestSyncEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	aliceLog := operation.NewLogID()
	bobLog := operation.NewLogID()

	stA := store.NewMemStore()
	stB := store.NewMemStore()

	for _, op := range buildChain(t, alice, aliceLog, 3) {
		require.NoError(t, stA.InsertOperation(ctx, op))
	}
	for _, op := range buildChain(t, bob, bobLog, 2) {
		require.NoError(t, stB.InsertOperation(ctx, op))
	}

	topicMap := StaticTopicMap{
		"t": {
			{Author: alice.PublicKey(), LogID: aliceLog},
			{Author: bob.PublicKey(), LogID: bobLog},
		},
	}

	opts := config.New(config.WithSyncTimeout(2 * time.Second))

	eventsA := make(chan event.Event, 16)
	eventsB := make(chan event.Event, 16)

	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	initiatorErr := make(chan error, 1)
	acceptorErr := make(chan error, 1)

	go func() {
		acceptorErr <- RunAcceptor(ctx, connB, "alice", Deps{Store: stB, LogMap: topicMap, Options: opts, Events: eventsB})
	}()
	go func() {
		initiatorErr <- RunInitiator(ctx, connA, "t", "bob", Deps{Store: stA, LogMap: topicMap, Options: opts, Events: eventsA})
	}()

	require.NoError(t, <-initiatorErr)
	require.NoError(t, <-acceptorErr)

	for seq := uint64(0); seq < 3; seq++ {
		_, err := stB.GetBySeqNum(ctx, alice.PublicKey(), aliceLog, seq)
		assert.NoError(t, err, "bob's store should now have alice's operation %d", seq)
	}
	for seq := uint64(0); seq < 2; seq++ {
		_, err := stA.GetBySeqNum(ctx, bob.PublicKey(), bobLog, seq)
		assert.NoError(t, err, "alice's store should now have bob's operation %d", seq)
	}
}

// TestSyncTerminatesOnEmptyDiff covers property 11: a session between
// two peers with nothing to exchange still completes (reaches Done on
// both sides) rather than hanging.
func TestSyncTerminatesOnEmptyDiff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	logID := operation.NewLogID()

	topicMap := StaticTopicMap{"t": {{Author: alice.PublicKey(), LogID: logID}}}
	opts := config.New(config.WithSyncTimeout(2 * time.Second))

	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	acceptorErr := make(chan error, 1)
	go func() {
		acceptorErr <- RunAcceptor(ctx, connB, "initiator", Deps{Store: store.NewMemStore(), LogMap: topicMap, Options: opts})
	}()

	err = RunInitiator(ctx, connA, "t", "acceptor", Deps{Store: store.NewMemStore(), LogMap: topicMap, Options: opts})
	require.NoError(t, err)
	require.NoError(t, <-acceptorErr)
}

func TestSyncUnknownTopicRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	topicMap := StaticTopicMap{}
	opts := config.New(config.WithSyncTimeout(200 * time.Millisecond))

	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	acceptorErr := make(chan error, 1)
	go func() {
		acceptorErr <- RunAcceptor(ctx, connB, "initiator", Deps{Store: store.NewMemStore(), LogMap: topicMap, Options: opts})
	}()

	err := RunInitiator(ctx, connA, "unknown-topic", "acceptor", Deps{Store: store.NewMemStore(), LogMap: topicMap, Options: opts})
	assert.Error(t, err)
	assert.Error(t, <-acceptorErr)
}
