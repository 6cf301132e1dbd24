package group

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/groveauth/access"
	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
	"github.com/datatrails/groveauth/operation"
	"github.com/datatrails/groveauth/store"
)

func mustPrepareAndIngest(t *testing.T, ctx context.Context, st store.Store, g *Group[access.PathCondition], author identity.KeyPair, action Action[access.PathCondition]) operation.Operation {
	t.Helper()
	op, err := g.Prepare(ctx, st, author, action)
	require.NoError(t, err)
	require.NoError(t, op.Validate())
	require.NoError(t, st.InsertOperation(ctx, op))
	return op
}

// TestGroupEndToEnd drives Group.Prepare/Process through the full
// operation + store stack, covering scenario S1 end-to-end rather
// than exercising State directly.
func TestGroupEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	alice, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	dir := NewDirectory[access.PathCondition]()
	g := NewGroup[access.PathCondition](operation.NewLogID(), dir)

	createOp := mustPrepareAndIngest(t, ctx, st, g, alice, NewCreate([]InitialMember[access.PathCondition]{
		{Member: NewIndividual(alice.PublicKey()), Access: level(access.Manage)},
	}))
	outcome, err := g.Process(createOp)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	dir.Register(g.State())

	addOp := mustPrepareAndIngest(t, ctx, st, g, alice, NewAdd[access.PathCondition](NewIndividual(bob.PublicKey()), level(access.Write)))
	outcome, err = g.Process(addOp)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	members := toMap(g.State().Members())
	assert.Equal(t, access.Write, members[NewIndividual(bob.PublicKey())].Level())

	has, err := g.State().HasAccess(bob.PublicKey(), level(access.Write))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = g.State().HasAccess(bob.PublicKey(), level(access.Manage))
	require.NoError(t, err)
	assert.False(t, has)
}

// TestGroupProcessOutOfOrder constructs an add operation that names the
// create's hash as both backlink and previous, then delivers it to
// Process before the create itself arrives: the add must buffer in the
// partial-order queue rather than apply, and must apply only once its
// dependency is processed.
func TestGroupProcessOutOfOrder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	alice, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	dir := NewDirectory[access.PathCondition]()
	g := NewGroup[access.PathCondition](operation.NewLogID(), dir)

	createOp, err := g.Prepare(ctx, st, alice, NewCreate([]InitialMember[access.PathCondition]{
		{Member: NewIndividual(alice.PublicKey()), Access: level(access.Manage)},
	}))
	require.NoError(t, err)
	require.NoError(t, st.InsertOperation(ctx, createOp))

	addBody, err := operation.Marshal(NewAdd[access.PathCondition](NewIndividual(bob.PublicKey()), level(access.Write)))
	require.NoError(t, err)

	createHash := createOp.Hash
	addOp, err := operation.New(operation.NewParams{
		Author:    alice,
		SeqNum:    1,
		Backlink:  &createHash,
		Previous:  []hashing.Hash{createHash},
		Timestamp: 2,
		LogID:     g.LogID(),
		Body:      addBody,
	})
	require.NoError(t, err)

	outcome, err := g.Process(addOp)
	require.NoError(t, err)
	assert.Equal(t, NoOp, outcome, "add must buffer until its dependency arrives")

	outcome, err = g.Process(createOp)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	members := toMap(g.State().Members())
	assert.Equal(t, access.Write, members[NewIndividual(bob.PublicKey())].Level())
}
