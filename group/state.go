package group

import (
	"sort"
	"strings"
	"sync"

	"github.com/datatrails/groveauth/access"
	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
)

// Outcome reports what applying a single control message did to a
// group's state (spec §4.8 "Failure semantics").
type Outcome int

const (
	// Applied means the action's mutation took effect.
	Applied Outcome = iota
	// NoOp means the action was authorized and well-formed but did not
	// change anything (e.g. Promote to a level that is not strictly
	// greater than the member's current access).
	NoOp
	// Unauthorized means the author lacked the required Manage access
	// at the operation's causal point. Per spec this is applied as a
	// no-op rather than rejected, to preserve convergence, and is
	// reported to the host as a warning-level event rather than an
	// error.
	Unauthorized
	// Discarded means the action was structurally invalid for this
	// group (double Create, or a mutation before any Create) and was
	// dropped entirely after causal ordering.
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NoOp:
		return "no-op"
	case Unauthorized:
		return "unauthorized"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

type editKind int

const (
	editRaise editKind = iota
	editLower
	editRemove
)

type editRecord[C access.Condition[C]] struct {
	hash   hashing.Hash
	kind   editKind
	access Access[C]
}

// resolveConflict implements spec §4.8's "Concurrent-conflict
// resolution" between two edits of the same member that neither
// causally precedes the other.
func resolveConflict[C access.Condition[C]](a, b editRecord[C]) editRecord[C] {
	if a.kind == editRemove || b.kind == editRemove {
		if a.kind == editRemove && b.kind == editRemove {
			if a.hash.Less(b.hash) {
				return b
			}
			return a
		}
		if a.kind == editRemove {
			return a
		}
		return b
	}

	if a.kind == b.kind {
		switch a.access.Compare(b.access) {
		case access.Greater:
			if a.kind == editRaise {
				return a
			}
			return b
		case access.Less:
			if a.kind == editRaise {
				return b
			}
			return a
		default:
			// Equal or Incomparable: tie-break by lexicographically
			// greater hash, per spec ("tie-break likewise").
			if a.hash.Less(b.hash) {
				return b
			}
			return a
		}
	}

	// Mixed raise/lower: the lower one wins (demote/remove dominance).
	if a.kind == editLower {
		return a
	}
	return b
}

// appliedEntry records one control message's effect for historical
// replay (members_at), keyed by its operation hash.
type appliedEntry[C access.Condition[C]] struct {
	hash     hashing.Hash
	previous []hashing.Hash
	author   identity.PublicKey
	action   Action[C]
}

// core holds the mutable CRDT accumulator shared by State's live view
// and the ephemeral accumulators used by historical replay. editHeads
// keeps, per member, every currently-unresolved concurrent edit (its
// DAG heads) rather than a single folded slot, so that a later edit
// descending from only one branch of an earlier conflict cannot cause
// the other, still-concurrent branch to be lost (spec §4.8 convergence,
// property 8).
type core[C access.Condition[C]] struct {
	created   bool
	members   map[Member]Access[C]
	editHeads map[Member]map[hashing.Hash]editRecord[C]
	byHash    map[hashing.Hash]*appliedEntry[C]
}

func newCore[C access.Condition[C]]() *core[C] {
	return &core[C]{
		members:   make(map[Member]Access[C]),
		editHeads: make(map[Member]map[hashing.Hash]editRecord[C]),
		byHash:    make(map[hashing.Hash]*appliedEntry[C]),
	}
}

func (c *core[C]) isAncestor(candidate hashing.Hash, from []hashing.Hash) bool {
	visited := make(map[hashing.Hash]bool)
	queue := append([]hashing.Hash{}, from...)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == candidate {
			return true
		}
		if visited[h] {
			continue
		}
		visited[h] = true
		if e, ok := c.byHash[h]; ok {
			queue = append(queue, e.previous...)
		}
	}
	return false
}

func (c *core[C]) applyCreate(hash hashing.Hash, action Action[C]) Outcome {
	if c.created {
		return Discarded
	}
	for _, im := range action.InitialMembers {
		c.members[im.Member] = im.Access
		c.editHeads[im.Member] = map[hashing.Hash]editRecord[C]{
			hash: {hash: hash, kind: editRaise, access: im.Access},
		}
	}
	c.created = true
	return Applied
}

func (c *core[C]) applyMutation(hash hashing.Hash, previous []hashing.Hash, action Action[C]) Outcome {
	m := action.Member
	cur, exists := c.members[m]

	var kind editKind
	var newAccess Access[C]

	switch action.Kind {
	case Add:
		if exists && action.Access.Compare(cur) != access.Greater {
			return NoOp
		}
		kind, newAccess = editRaise, action.Access
	case Promote:
		if !exists || action.Access.Compare(cur) != access.Greater {
			return NoOp
		}
		kind, newAccess = editRaise, action.Access
	case Demote:
		if !exists || action.Access.Compare(cur) != access.Less {
			return NoOp
		}
		kind, newAccess = editLower, action.Access
	case Remove:
		if !exists {
			return NoOp
		}
		kind = editRemove
	}

	candidate := editRecord[C]{hash: hash, kind: kind, access: newAccess}

	heads := c.editHeads[m]
	if heads == nil {
		heads = make(map[hashing.Hash]editRecord[C])
	}
	// Heads this edit causally descends from are superseded; any head
	// that is not an ancestor of this edit is still concurrent with it
	// and must stay in the head set to be folded in below.
	for headHash := range heads {
		if c.isAncestor(headHash, previous) {
			delete(heads, headHash)
		}
	}
	heads[hash] = candidate
	c.editHeads[m] = heads

	resolved := foldHeads(heads)
	if resolved.kind == editRemove {
		delete(c.members, m)
	} else {
		c.members[m] = resolved.access
	}
	return Applied
}

// foldHeads recomputes a member's effective access by reducing every
// currently-concurrent edit head with resolveConflict, in a fixed
// (hash-sorted) order so every replica folds the same head set to the
// same result regardless of local map iteration order.
func foldHeads[C access.Condition[C]](heads map[hashing.Hash]editRecord[C]) editRecord[C] {
	ordered := make([]editRecord[C], 0, len(heads))
	for _, r := range heads {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].hash.Less(ordered[j].hash) })

	result := ordered[0]
	for _, r := range ordered[1:] {
		result = resolveConflict(result, r)
	}
	return result
}

// effectiveAccess returns m's direct access in this core, ignoring
// nested-group resolution (the caller adds that).
func (c *core[C]) effectiveAccess(m Member) (Access[C], bool) {
	a, ok := c.members[m]
	return a, ok
}

// State is the live, replicated view of one group's membership (spec
// §3 GroupState). It is owned exclusively by the goroutine driving its
// Group's Process loop (spec §5); the mutex exists only to let
// read-only accessors (Members, HasAccess) be called from other
// goroutines (e.g. a host's authorization middleware) without races.
type State[C access.Condition[C]] struct {
	mu  sync.Mutex
	id  ID
	dir *Directory[C]

	core    *core[C]
	applied []appliedEntry[C]
	heads   map[hashing.Hash]struct{}
}

// NewState creates an empty, not-yet-created group view. dir is used
// to resolve nested GroupMember entries transitively; pass nil if this
// group will never contain nested groups.
func NewState[C access.Condition[C]](dir *Directory[C]) *State[C] {
	return &State[C]{
		dir:   dir,
		core:  newCore[C](),
		heads: make(map[hashing.Hash]struct{}),
	}
}

// ID returns the group's id, valid once its Create action has been
// applied (the id is the hash of that operation).
func (s *State[C]) ID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Heads returns the current causal tips of operations applied to this
// group, used as `previous` for the next authored operation.
func (s *State[C]) Heads() []hashing.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]hashing.Hash, 0, len(s.heads))
	for h := range s.heads {
		out = append(out, h)
	}
	return hashing.SortHashes(out)
}

func (s *State[C]) updateHeads(hash hashing.Hash, previous []hashing.Hash) {
	for _, p := range previous {
		delete(s.heads, p)
	}
	s.heads[hash] = struct{}{}
}

// Apply applies one control message to the group's state (spec §4.8
// "process"/"Application semantics"). previous is the operation's
// causal-dependency hashes (its `previous` field); author is the
// operation's public key.
func (s *State[C]) Apply(hash hashing.Hash, previous []hashing.Hash, author identity.PublicKey, action Action[C]) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := appliedEntry[C]{hash: hash, previous: previous, author: author, action: action}
	s.applied = append(s.applied, entry)
	s.core.byHash[hash] = &s.applied[len(s.applied)-1]
	s.updateHeads(hash, previous)

	if action.Kind == Create {
		outcome := s.core.applyCreate(hash, action)
		if outcome == Applied && s.id.IsZero() {
			s.id = hash
		}
		if outcome == Discarded {
			return Discarded, ErrAlreadyCreated
		}
		return outcome, nil
	}

	if !s.core.created {
		return Discarded, ErrUnknownGroup
	}

	if !s.hasManageAccessLocked(author, previous) {
		return Unauthorized, nil
	}

	return s.core.applyMutation(hash, previous, action), nil
}

// hasManageAccessLocked checks authorization for a mutating action:
// the author must hold >= Manage, transitively, in the state as of
// the operation's causal dependencies. Per the simplification recorded
// in DESIGN.md, nested-group resolution uses each subgroup's current
// live state rather than a point-in-time snapshot of the subgroup.
//
// This goes through the same authorization-checked replay used by
// MembersAt/TransitiveMembersAt (newReplayCache), so the live path and
// a fresh replica computing members_at(deps) apply exactly the same
// mutations (spec property 9).
func (s *State[C]) hasManageAccessLocked(author identity.PublicKey, at []hashing.Hash) bool {
	rc := newReplayCache(s.applied, s.dir, s.id)
	ok, err := rc.hasManageAccess(author, at)
	if err != nil {
		return false
	}
	return ok
}

// Members returns the group's direct (non-transitive) member map.
func (s *State[C]) Members() []MemberAccess[C] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedMembers(s.core.members)
}

// MemberAccess pairs a Member with its Access, used by Members and
// TransitiveMembers snapshots.
type MemberAccess[C access.Condition[C]] struct {
	Member Member
	Access Access[C]
}

func sortedMembers[C access.Condition[C]](members map[Member]Access[C]) []MemberAccess[C] {
	out := make([]MemberAccess[C], 0, len(members))
	for m, a := range members {
		out = append(out, MemberAccess[C]{Member: m, Access: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Member.Less(out[j].Member) })
	return out
}

// TransitiveMembers resolves nested groups to their contributing
// individuals, per spec §4.8's min(parent-access, subgroup-access)
// rule, using a fresh cycle-detection set rooted at this group.
func (s *State[C]) TransitiveMembers() (map[identity.PublicKey]Access[C], error) {
	s.mu.Lock()
	members := make(map[Member]Access[C], len(s.core.members))
	for m, a := range s.core.members {
		members[m] = a
	}
	id := s.id
	dir := s.dir
	s.mu.Unlock()

	return resolveTransitive(members, dir, map[ID]bool{id: true})
}

func resolveTransitive[C access.Condition[C]](members map[Member]Access[C], dir *Directory[C], visited map[ID]bool) (map[identity.PublicKey]Access[C], error) {
	out := make(map[identity.PublicKey]Access[C])

	for m, a := range members {
		if m.IsIndividual() {
			mergeMax(out, m.PublicKey(), a)
			continue
		}

		gid := m.GroupID()
		if visited[gid] {
			return nil, &CycleError{Chain: []ID{gid}}
		}
		if dir == nil {
			continue
		}
		sub, ok := dir.Lookup(gid)
		if !ok {
			continue
		}

		subVisited := make(map[ID]bool, len(visited)+1)
		for k := range visited {
			subVisited[k] = true
		}
		subVisited[gid] = true

		subMembers := sub.Members()
		subMap := make(map[Member]Access[C], len(subMembers))
		for _, ma := range subMembers {
			subMap[ma.Member] = ma.Access
		}

		subTransitive, err := resolveTransitive(subMap, dir, subVisited)
		if err != nil {
			return nil, err
		}
		for pk, subAccess := range subTransitive {
			mergeMax(out, pk, minAccess(a, subAccess))
		}
	}

	return out, nil
}

func mergeMax[C access.Condition[C]](out map[identity.PublicKey]Access[C], pk identity.PublicKey, a Access[C]) {
	existing, ok := out[pk]
	if !ok || a.Compare(existing) == access.Greater {
		out[pk] = a
	}
}

func minAccess[C access.Condition[C]](a, b Access[C]) Access[C] {
	switch a.Compare(b) {
	case access.Less, access.Equal:
		return a
	case access.Greater:
		return b
	default:
		// Incomparable conditions: fall back to the parent-group
		// access, since the member's own grant cannot be compared
		// against it to find a strict minimum.
		return a
	}
}

// HasAccess reports whether pk holds at least required access,
// transitively, in the group's current live state.
func (s *State[C]) HasAccess(pk identity.PublicKey, required Access[C]) (bool, error) {
	transitive, err := s.TransitiveMembers()
	if err != nil {
		return false, err
	}
	a, ok := transitive[pk]
	if !ok {
		return false, nil
	}
	return a.GreaterOrEqual(required), nil
}

// MembersAt replays the CRDT using only the causal past of deps (spec
// §4.8 "Historical views"), returning the direct member map as of that
// point.
func (s *State[C]) MembersAt(deps []hashing.Hash) (map[Member]Access[C], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membersAtLocked(deps)
}

func (s *State[C]) membersAtLocked(deps []hashing.Hash) (map[Member]Access[C], error) {
	rc := newReplayCache(s.applied, s.dir, s.id)
	return rc.membersAt(deps)
}

// replayCache computes authorization-checked historical member maps
// for a fixed set of applied entries, memoizing by dependency set so
// that recomputing authorization for every mutation's own `previous`
// (itself a nested membersAt call, see hasManageAccess) does not
// repeat the same replay over and over.
//
// It exists so that historical replay (MembersAt/TransitiveMembersAt)
// and the live path's authorization check (hasManageAccessLocked) run
// through one shared implementation: mutations whose author lacked
// Manage access at their own causal point are skipped here exactly as
// Apply skips them live, instead of being folded in unconditionally.
type replayCache[C access.Condition[C]] struct {
	entries []appliedEntry[C]
	byHash  map[hashing.Hash]*appliedEntry[C]
	dir     *Directory[C]
	id      ID
	memo    map[string]map[Member]Access[C]
}

func newReplayCache[C access.Condition[C]](entries []appliedEntry[C], dir *Directory[C], id ID) *replayCache[C] {
	ownCopy := append([]appliedEntry[C]{}, entries...)
	byHash := make(map[hashing.Hash]*appliedEntry[C], len(ownCopy))
	for i := range ownCopy {
		byHash[ownCopy[i].hash] = &ownCopy[i]
	}
	return &replayCache[C]{
		entries: ownCopy,
		byHash:  byHash,
		dir:     dir,
		id:      id,
		memo:    make(map[string]map[Member]Access[C]),
	}
}

func depsKey(deps []hashing.Hash) string {
	sorted := hashing.SortHashes(append([]hashing.Hash{}, deps...))
	var sb strings.Builder
	for _, h := range sorted {
		sb.Write(h.Bytes())
	}
	return sb.String()
}

func ancestorClosure[C access.Condition[C]](byHash map[hashing.Hash]*appliedEntry[C], deps []hashing.Hash) map[hashing.Hash]bool {
	closure := make(map[hashing.Hash]bool)
	queue := append([]hashing.Hash{}, deps...)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if closure[h] {
			continue
		}
		closure[h] = true
		if e, ok := byHash[h]; ok {
			queue = append(queue, e.previous...)
		}
	}
	return closure
}

// membersAt replays entries in causal order, restricted to the
// ancestor closure of deps, applying a mutation only once its own
// author is confirmed (recursively, via hasManageAccess) to have held
// Manage access at its own causal dependencies. Entries are assumed to
// already be in a valid topological (causal) order, which holds for
// s.applied because ingest only delivers an operation once the
// orderer has released every causal prerequisite first.
func (rc *replayCache[C]) membersAt(deps []hashing.Hash) (map[Member]Access[C], error) {
	key := depsKey(deps)
	if m, ok := rc.memo[key]; ok {
		return m, nil
	}

	closure := ancestorClosure(rc.byHash, deps)

	replay := newCore[C]()
	for _, e := range rc.entries {
		if !closure[e.hash] {
			continue
		}
		entryCopy := e
		replay.byHash[e.hash] = &entryCopy

		if e.action.Kind == Create {
			replay.applyCreate(e.hash, e.action)
			continue
		}
		if !replay.created {
			continue
		}

		authorized, err := rc.hasManageAccess(e.author, e.previous)
		if err != nil {
			return nil, err
		}
		if !authorized {
			continue
		}
		replay.applyMutation(e.hash, e.previous, e.action)
	}

	rc.memo[key] = replay.members
	return replay.members, nil
}

// hasManageAccess reports whether author held >= Manage access,
// transitively, in the member map computed as of at.
func (rc *replayCache[C]) hasManageAccess(author identity.PublicKey, at []hashing.Hash) (bool, error) {
	members, err := rc.membersAt(at)
	if err != nil {
		return false, err
	}
	transitive, err := resolveTransitive(members, rc.dir, map[ID]bool{rc.id: true})
	if err != nil {
		return false, err
	}
	a, ok := transitive[author]
	if !ok {
		return false, nil
	}
	return a.GreaterOrEqual(access.New[C](access.Manage)), nil
}

// TransitiveMembersAt is the transitive counterpart of MembersAt.
// Nested groups are resolved against their current live state, not
// against their state as of deps.
func (s *State[C]) TransitiveMembersAt(deps []hashing.Hash) (map[identity.PublicKey]Access[C], error) {
	s.mu.Lock()
	members, err := s.membersAtLocked(deps)
	id := s.id
	dir := s.dir
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return resolveTransitive(members, dir, map[ID]bool{id: true})
}
