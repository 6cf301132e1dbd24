package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/groveauth/access"
	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
)

// freshGroupWithMember builds a group with alice as Manage and bob at
// baseLevel, returning the state and the hash of bob's base grant
// (used as the common `previous` for two concurrent edits).
func freshGroupWithMember(t *testing.T, alice, bob identity.PublicKey, baseLevel access.Level) (*State[access.PathCondition], hashing.Hash) {
	t.Helper()
	s := NewState[access.PathCondition](nil)

	createHash := h("create")
	_, err := s.Apply(createHash, nil, alice, NewCreate([]InitialMember[access.PathCondition]{
		{Member: NewIndividual(alice), Access: level(access.Manage)},
		{Member: NewIndividual(bob), Access: level(baseLevel)},
	}))
	require.NoError(t, err)
	return s, createHash
}

// applyBoth applies two concurrent edits (both depending only on base,
// so neither is an ancestor of the other) to a fresh copy of state in
// both orders, and asserts the resulting member access converges.
func applyBoth(t *testing.T, alice, bob identity.PublicKey, baseLevel access.Level, editA, editB func(base hashing.Hash) (hashing.Hash, Action[access.PathCondition])) testAccess {
	t.Helper()

	run := func(first, second func(base hashing.Hash) (hashing.Hash, Action[access.PathCondition])) testAccess {
		s, base := freshGroupWithMember(t, alice, bob, baseLevel)
		h1, a1 := first(base)
		_, err := s.Apply(h1, []hashing.Hash{base}, alice, a1)
		require.NoError(t, err)
		h2, a2 := second(base)
		_, err = s.Apply(h2, []hashing.Hash{base}, alice, a2)
		require.NoError(t, err)
		members := toMap(s.Members())
		acc, ok := members[NewIndividual(bob)]
		require.True(t, ok)
		return acc
	}

	resultAB := run(editA, editB)
	resultBA := run(editB, editA)
	assert.Equal(t, resultAB, resultBA, "result must not depend on delivery order")
	return resultAB
}

func TestConflictBothRaiseHigherWins(t *testing.T) {
	alice := newPK(t)
	bob := newPK(t)

	result := applyBoth(t, alice, bob, access.Read,
		func(base hashing.Hash) (hashing.Hash, Action[access.PathCondition]) {
			return h("promote-write"), NewPromote[access.PathCondition](NewIndividual(bob), level(access.Write))
		},
		func(base hashing.Hash) (hashing.Hash, Action[access.PathCondition]) {
			return h("promote-manage"), NewPromote[access.PathCondition](NewIndividual(bob), level(access.Manage))
		},
	)
	assert.Equal(t, access.Manage, result.Level())
}

func TestConflictBothLowerLowerWins(t *testing.T) {
	alice := newPK(t)
	bob := newPK(t)

	result := applyBoth(t, alice, bob, access.Manage,
		func(base hashing.Hash) (hashing.Hash, Action[access.PathCondition]) {
			return h("demote-write"), NewDemote[access.PathCondition](NewIndividual(bob), level(access.Write))
		},
		func(base hashing.Hash) (hashing.Hash, Action[access.PathCondition]) {
			return h("demote-read"), NewDemote[access.PathCondition](NewIndividual(bob), level(access.Read))
		},
	)
	assert.Equal(t, access.Read, result.Level())
}

func TestConflictMixedRaiseLowerLowerWins(t *testing.T) {
	alice := newPK(t)
	bob := newPK(t)

	result := applyBoth(t, alice, bob, access.Read,
		func(base hashing.Hash) (hashing.Hash, Action[access.PathCondition]) {
			return h("promote-manage"), NewPromote[access.PathCondition](NewIndividual(bob), level(access.Manage))
		},
		func(base hashing.Hash) (hashing.Hash, Action[access.PathCondition]) {
			return h("demote-pull"), NewDemote[access.PathCondition](NewIndividual(bob), level(access.Pull))
		},
	)
	assert.Equal(t, access.Pull, result.Level())
}

func TestConflictConcurrentRemoveAlwaysWins(t *testing.T) {
	alice := newPK(t)
	bob := newPK(t)

	s, base := freshGroupWithMember(t, alice, bob, access.Read)

	promoteHash := h("promote")
	_, err := s.Apply(promoteHash, []hashing.Hash{base}, alice, NewPromote[access.PathCondition](NewIndividual(bob), level(access.Manage)))
	require.NoError(t, err)

	removeHash := h("remove")
	_, err = s.Apply(removeHash, []hashing.Hash{base}, alice, NewRemove[access.PathCondition](NewIndividual(bob)))
	require.NoError(t, err)

	members := toMap(s.Members())
	_, present := members[NewIndividual(bob)]
	assert.False(t, present, "concurrent Remove must dominate any mutation")

	// Order reversed: same outcome.
	s2, base2 := freshGroupWithMember(t, alice, bob, access.Read)
	_, err = s2.Apply(removeHash, []hashing.Hash{base2}, alice, NewRemove[access.PathCondition](NewIndividual(bob)))
	require.NoError(t, err)
	_, err = s2.Apply(promoteHash, []hashing.Hash{base2}, alice, NewPromote[access.PathCondition](NewIndividual(bob), level(access.Manage)))
	require.NoError(t, err)

	members2 := toMap(s2.Members())
	_, present = members2[NewIndividual(bob)]
	assert.False(t, present)
}

// TestConflictThreeWayForkKeepsAllHeads reproduces a fork where a third
// edit causally follows only one branch of an earlier two-way conflict:
// e1 -> {eA: Promote(Manage), eB: Demote(Pull)} -> eD (prev=[eB]:
// Promote(Write)). eA and eD are still concurrent (neither is an
// ancestor of the other), so the convergent value must be the max of
// both surviving heads (Manage), regardless of delivery order. A
// single-slot resolver that replaces wholesale whenever a new edit
// descends from the current slot would lose eA whenever eB or eD is
// folded in first.
func TestConflictThreeWayForkKeepsAllHeads(t *testing.T) {
	alice := newPK(t)
	bob := newPK(t)

	e1 := h("add-bob-read")
	eA := h("promote-manage")
	eB := h("demote-pull")
	eD := h("promote-write")

	run := func(order []int) access.Level {
		s := NewState[access.PathCondition](nil)
		createHash := h("create")
		_, err := s.Apply(createHash, nil, alice, NewCreate([]InitialMember[access.PathCondition]{
			{Member: NewIndividual(alice), Access: level(access.Manage)},
		}))
		require.NoError(t, err)

		steps := []struct {
			hash     hashing.Hash
			previous []hashing.Hash
			action   Action[access.PathCondition]
		}{
			{e1, []hashing.Hash{createHash}, NewAdd[access.PathCondition](NewIndividual(bob), level(access.Read))},
			{eA, []hashing.Hash{e1}, NewPromote[access.PathCondition](NewIndividual(bob), level(access.Manage))},
			{eB, []hashing.Hash{e1}, NewDemote[access.PathCondition](NewIndividual(bob), level(access.Pull))},
			{eD, []hashing.Hash{eB}, NewPromote[access.PathCondition](NewIndividual(bob), level(access.Write))},
		}

		for _, i := range order {
			step := steps[i]
			_, err := s.Apply(step.hash, step.previous, alice, step.action)
			require.NoError(t, err)
		}

		members := toMap(s.Members())
		acc, ok := members[NewIndividual(bob)]
		require.True(t, ok)
		return acc.Level()
	}

	forward := run([]int{0, 1, 2, 3})
	reverse := run([]int{0, 3, 2, 1})
	mixed := run([]int{0, 2, 3, 1})

	assert.Equal(t, access.Manage, forward, "eA and eD are still concurrent heads; max must win")
	assert.Equal(t, forward, reverse, "result must not depend on delivery order")
	assert.Equal(t, forward, mixed, "result must not depend on delivery order")
}

func TestSequentialEditsAreNotTreatedAsConcurrent(t *testing.T) {
	alice := newPK(t)
	bob := newPK(t)
	s, createHash := freshGroupWithMember(t, alice, bob, access.Read)

	promoteHash := h("promote-write")
	_, err := s.Apply(promoteHash, []hashing.Hash{createHash}, alice, NewPromote[access.PathCondition](NewIndividual(bob), level(access.Write)))
	require.NoError(t, err)

	// This edit causally follows the first promote (its previous names
	// promoteHash), so it must simply override rather than entering
	// the concurrent-conflict resolver.
	_, err = s.Apply(h("demote-pull"), []hashing.Hash{promoteHash}, alice, NewDemote[access.PathCondition](NewIndividual(bob), level(access.Pull)))
	require.NoError(t, err)

	members := toMap(s.Members())
	assert.Equal(t, access.Pull, members[NewIndividual(bob)].Level())
}
