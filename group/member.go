// Package group implements the group-authorization CRDT (C8): a
// replicated members/permissions state machine applied over the
// orderer's causally-linearised operation stream.
package group

import (
	"fmt"

	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
)

// ID identifies a group: the hash of the operation that created it
// (spec §3: "GroupId is the hash of the group-creating operation").
type ID = hashing.Hash

// MemberKind distinguishes the two GroupMember variants.
type MemberKind int

const (
	// Individual names a single peer by public key.
	Individual MemberKind = iota
	// GroupMemberKind names another group, contributing its transitive
	// members (spec §4.8 "Nested groups").
	GroupMemberKind
)

// Member is the spec's `GroupMember` sum type: either an individual
// peer or a nested group, used as a key in a GroupState's member map.
type Member struct {
	kind       MemberKind
	individual identity.PublicKey
	group      ID
}

// NewIndividual builds a Member naming a single peer.
func NewIndividual(pk identity.PublicKey) Member {
	return Member{kind: Individual, individual: pk}
}

// NewGroupMember builds a Member naming a nested group.
func NewGroupMember(id ID) Member {
	return Member{kind: GroupMemberKind, group: id}
}

// IsIndividual reports whether m names a single peer.
func (m Member) IsIndividual() bool {
	return m.kind == Individual
}

// IsGroup reports whether m names a nested group.
func (m Member) IsGroup() bool {
	return m.kind == GroupMemberKind
}

// PublicKey returns the named peer's key; only meaningful if
// IsIndividual() is true.
func (m Member) PublicKey() identity.PublicKey {
	return m.individual
}

// GroupID returns the named subgroup's id; only meaningful if
// IsGroup() is true.
func (m Member) GroupID() ID {
	return m.group
}

// String renders the member for logging.
func (m Member) String() string {
	if m.kind == Individual {
		return fmt.Sprintf("individual(%s)", m.individual)
	}
	return fmt.Sprintf("group(%s)", m.group)
}

// Less gives Member a deterministic total order (individuals sort
// before groups, then by key/id bytes), used for stable iteration when
// building sorted member snapshots in tests and checkpoints.
func (m Member) Less(other Member) bool {
	if m.kind != other.kind {
		return m.kind < other.kind
	}
	if m.kind == Individual {
		return m.individual.Less(other.individual)
	}
	return m.group.Less(other.group)
}
