// Package orderer implements the partial-order dependency queue (C5) that
// linearises operations arriving out of order, emitting each one only once
// every causal prerequisite has been emitted.
package orderer

import (
	"github.com/datatrails/groveauth/logging"
)

// pendingEntry records an item waiting on a still-missing dependency,
// together with the full dependency list it needs (so that once *this*
// dependency resolves we can re-check all the others).
type pendingEntry[K comparable] struct {
	key  K
	deps []K
}

// PartialOrder is the dependency-satisfied linearisation queue described in
// spec §4.5. It is not safe for concurrent use from multiple goroutines;
// per §5, it is owned exclusively by the ingest task.
type PartialOrder[K comparable] struct {
	ready      map[K]struct{}
	readyQueue []K
	pending    map[K][]pendingEntry[K]
	log        logger
}

type logger interface {
	Debugf(format string, args ...any)
}

// New creates an empty queue.
func New[K comparable]() *PartialOrder[K] {
	return &PartialOrder[K]{
		ready:   make(map[K]struct{}),
		pending: make(map[K][]pendingEntry[K]),
		log:     logging.Named("orderer"),
	}
}

// Ready reports whether every dependency in deps has already been emitted
// (is a member of the ready set).
func (p *PartialOrder[K]) Ready(deps []K) bool {
	for _, d := range deps {
		if _, ok := p.ready[d]; !ok {
			return false
		}
	}
	return true
}

// MarkReady inserts k into the ready set and, if it was not already
// present, appends it to the FIFO ready queue. Idempotent: marking an
// already-ready key again is a no-op, which is what keeps property 4
// ("no key is emitted twice") true even if a caller offers the same key
// more than once.
func (p *PartialOrder[K]) MarkReady(k K) {
	if _, ok := p.ready[k]; ok {
		return
	}
	p.ready[k] = struct{}{}
	p.readyQueue = append(p.readyQueue, k)
	p.log.Debugf("marked ready: %v (queue depth %d)", k, len(p.readyQueue))
}

// MarkPending records that k is waiting on deps. For each dependency not
// yet satisfied, k is added to that dependency's pending list; this is
// intentionally not deduplicated against repeat calls for the same
// (k, dep) pair beyond what Process already guards against, since k is
// only ever offered to MarkPending once per ingest attempt.
func (p *PartialOrder[K]) MarkPending(k K, deps []K) {
	for _, d := range deps {
		if _, ok := p.ready[d]; ok {
			continue
		}
		p.pending[d] = append(p.pending[d], pendingEntry[K]{key: k, deps: deps})
	}
}

// Process is the combined operation most callers want: if deps are all
// ready, k is marked ready (recursively unblocking anything pending on it);
// otherwise k is buffered in pending under its unmet dependencies.
func (p *PartialOrder[K]) Process(k K, deps []K) {
	if !p.Ready(deps) {
		p.MarkPending(k, deps)
		return
	}
	p.MarkReady(k)
	p.processPending(k)
}

// processPending re-checks every item waiting on k now that k is ready,
// recursively cascading through the dependency graph (spec §4.5:
// "process_pending(k): ... if ready(deps') now holds, mark_ready(k') and
// recurse with k'. Finally drop pending[k]").
func (p *PartialOrder[K]) processPending(k K) {
	dependents, ok := p.pending[k]
	if !ok {
		delete(p.pending, k)
		return
	}

	for _, entry := range dependents {
		if !p.Ready(entry.deps) {
			continue
		}
		if _, alreadyReady := p.ready[entry.key]; alreadyReady {
			continue
		}
		p.MarkReady(entry.key)
		p.processPending(entry.key)
	}

	delete(p.pending, k)
}

// TakeNextReady pops the head of the FIFO ready queue, or reports false if
// it is empty.
func (p *PartialOrder[K]) TakeNextReady() (K, bool) {
	if len(p.readyQueue) == 0 {
		var zero K
		return zero, false
	}
	k := p.readyQueue[0]
	p.readyQueue = p.readyQueue[1:]
	return k, true
}

// Len reports how many items are waiting in the ready queue, for
// diagnostics and tests.
func (p *PartialOrder[K]) Len() int {
	return len(p.readyQueue)
}

// PendingCount reports how many distinct dependencies still have at least
// one item waiting on them, for diagnostics.
func (p *PartialOrder[K]) PendingCount() int {
	return len(p.pending)
}
