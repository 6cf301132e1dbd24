package orderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPartialOrderBasicGraph exercises the same dependency graph as the
// reference implementation's own partial-order test:
//
//	A <-- B <--------- D
//	       \--- C <---/
func TestPartialOrderBasicGraph(t *testing.T) {
	q := New[string]()

	q.Process("A", nil)
	assert.Equal(t, 1, q.Len())

	q.Process("B", []string{"A"})
	assert.Equal(t, 2, q.Len())

	// D depends on B and C; C hasn't arrived yet, so D must wait.
	q.Process("D", []string{"B", "C"})
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 1, q.PendingCount())

	// C arrives, satisfying D's dependencies; both become ready.
	q.Process("C", []string{"B"})
	assert.Equal(t, 4, q.Len())
	assert.Equal(t, 0, q.PendingCount())

	order := drain(q)
	assert.Equal(t, []string{"A", "B", "C", "D"}, order)
}

// TestPartialOrderOutOfOrderArrival delivers dependents before their
// dependencies to exercise the recursive cascade in processPending.
func TestPartialOrderOutOfOrderArrival(t *testing.T) {
	q := New[string]()

	q.Process("G", []string{"F"})
	q.Process("F", []string{"E"})
	q.Process("E", []string{"D"})
	q.Process("D", []string{"C"})
	q.Process("C", []string{"B"})
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 5, q.PendingCount())

	q.Process("A", nil)
	q.Process("B", []string{"A"})

	order := drain(q)
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F", "G"}, order)
}

// TestPartialOrderSafety tests property 4 from spec §8: no key is emitted
// before all of its transitive dependencies, and no key is emitted twice
// even if it is offered to Process more than once.
func TestPartialOrderSafety(t *testing.T) {
	q := New[string]()
	q.Process("A", nil)
	q.Process("B", []string{"A"})
	q.Process("B", []string{"A"}) // duplicate offer

	order := drain(q)
	assert.Equal(t, []string{"A", "B"}, order)
}

// TestPartialOrderLiveness tests property 5: a dependency-closed set of
// offered keys is eventually emitted in full, regardless of arrival order.
func TestPartialOrderLiveness(t *testing.T) {
	q := New[int]()
	// Chain of 100 keys, delivered in reverse order.
	for i := 99; i >= 0; i-- {
		var deps []int
		if i > 0 {
			deps = []int{i - 1}
		}
		q.Process(i, deps)
	}

	order := drain(q)
	assert.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func drain[K comparable](q *PartialOrder[K]) []K {
	var out []K
	for {
		k, ok := q.TakeNextReady()
		if !ok {
			return out
		}
		out = append(out, k)
	}
}
