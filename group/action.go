package group

import (
	"github.com/datatrails/groveauth/access"
)

// Access is the group CRDT's access value: a Level paired with an
// optional application-supplied Condition. Member conditions are out
// of scope for this package's own tests (which use unconditional
// access throughout), but the type parameter is left open so callers
// can instantiate group.State with whatever Condition type their
// application needs.
type Access[C access.Condition[C]] = access.Access[C]

// ActionKind discriminates the GroupAction sum type (spec §4.8).
type ActionKind int

const (
	Create ActionKind = iota
	Add
	Remove
	Promote
	Demote
)

func (k ActionKind) String() string {
	switch k {
	case Create:
		return "create"
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Promote:
		return "promote"
	case Demote:
		return "demote"
	default:
		return "unknown"
	}
}

// InitialMember is one entry of a Create action's initial_members list.
type InitialMember[C access.Condition[C]] struct {
	Member Member
	Access Access[C]
}

// Action is the control message carried in an operation body whose
// header extensions name a group_id (spec §4.8). Exactly one of the
// fields is meaningful, selected by Kind; this mirrors the teacher
// codebase's tagged-struct approach to wire enums rather than an
// interface-per-variant, since the whole Action is what gets
// CBOR-encoded as the operation payload.
type Action[C access.Condition[C]] struct {
	Kind ActionKind

	// Create
	InitialMembers []InitialMember[C]

	// Add, Remove, Promote, Demote
	Member Member
	Access Access[C]
}

// NewCreate builds a Create action.
func NewCreate[C access.Condition[C]](initial []InitialMember[C]) Action[C] {
	return Action[C]{Kind: Create, InitialMembers: initial}
}

// NewAdd builds an Add action.
func NewAdd[C access.Condition[C]](member Member, level Access[C]) Action[C] {
	return Action[C]{Kind: Add, Member: member, Access: level}
}

// NewRemove builds a Remove action.
func NewRemove[C access.Condition[C]](member Member) Action[C] {
	return Action[C]{Kind: Remove, Member: member}
}

// NewPromote builds a Promote action. The caller must ensure level is
// strictly greater than the member's current access; State.Apply
// treats a non-increasing Promote as a no-op rather than an error
// (spec §4.8).
func NewPromote[C access.Condition[C]](member Member, level Access[C]) Action[C] {
	return Action[C]{Kind: Promote, Member: member, Access: level}
}

// NewDemote builds a Demote action, the mirror of NewPromote.
func NewDemote[C access.Condition[C]](member Member, level Access[C]) Action[C] {
	return Action[C]{Kind: Demote, Member: member, Access: level}
}
