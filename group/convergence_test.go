package group

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/groveauth/access"
	"github.com/datatrails/groveauth/hashing"
)

// TestGroupConvergenceAcrossOrders covers scenario S6 / property 8: given
// the same causal past, two replicas that apply a batch of pairwise
// concurrent edits in different (but each individually causally valid)
// orders compute identical membership.
func TestGroupConvergenceAcrossOrders(t *testing.T) {
	alice := newPK(t)
	bob := newPK(t)
	claire := newPK(t)

	build := func(order []int) map[Member]Access[access.PathCondition] {
		s := NewState[access.PathCondition](nil)
		createHash := h("create")
		_, err := s.Apply(createHash, nil, alice, NewCreate([]InitialMember[access.PathCondition]{
			{Member: NewIndividual(alice), Access: level(access.Manage)},
			{Member: NewIndividual(bob), Access: level(access.Read)},
			{Member: NewIndividual(claire), Access: level(access.Read)},
		}))
		require.NoError(t, err)

		edits := []struct {
			hash   hashing.Hash
			action Action[access.PathCondition]
		}{
			{h("promote-bob"), NewPromote[access.PathCondition](NewIndividual(bob), level(access.Write))},
			{h("promote-claire"), NewPromote[access.PathCondition](NewIndividual(claire), level(access.Manage))},
			{h("demote-bob"), NewDemote[access.PathCondition](NewIndividual(bob), level(access.Pull))},
		}

		for _, i := range order {
			e := edits[i]
			_, err := s.Apply(e.hash, []hashing.Hash{createHash}, alice, e.action)
			require.NoError(t, err)
		}
		return toMap(s.Members())
	}

	forward := build([]int{0, 1, 2})
	reverse := build([]int{2, 1, 0})
	shuffled := build([]int{1, 2, 0})

	if diff := cmp.Diff(forward, reverse, cmpopts.EquateComparable(testAccess{})); diff != "" {
		t.Errorf("membership diverged between delivery orders (-forward +reverse):\n%s", diff)
	}
	if diff := cmp.Diff(forward, shuffled, cmpopts.EquateComparable(testAccess{})); diff != "" {
		t.Errorf("membership diverged between delivery orders (-forward +shuffled):\n%s", diff)
	}
}
