package identity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uxtrace/uxtrace/capture/dom"
)

func TestIDOfStable(t *testing.T) {
	r := NewRegistry()

	a := dom.NewElement("div", nil)
	b := dom.NewElement("div", nil)

	idA := r.IDOf(a)
	idB := r.IDOf(b)

	assert.NotEqual(t, idA, idB, "distinct nodes get distinct ids")
	assert.Equal(t, idA, r.IDOf(a), "same node keeps its id")
	assert.Equal(t, idB, r.IDOf(b))
	assert.Equal(t, 2, r.Size())
}

func TestIDOfEqualContentDistinctIdentity(t *testing.T) {
	r := NewRegistry()

	// Structurally identical nodes are still different identities.
	a := dom.NewElement("span", map[string]string{"class": "x"})
	b := dom.NewElement("span", map[string]string{"class": "x"})

	assert.NotEqual(t, r.IDOf(a), r.IDOf(b))
}

func TestLookup(t *testing.T) {
	r := NewRegistry()

	n := dom.NewElement("p", nil)
	_, ok := r.Lookup(n)
	assert.False(t, ok, "lookup never allocates")

	id := r.IDOf(n)
	got, ok := r.Lookup(n)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestIDOfMonotonic(t *testing.T) {
	r := NewRegistry()

	// Ids are never reused within a session, even after churn.
	nodes := make([]*dom.Node, 50)
	prev := 0
	for i := range nodes {
		nodes[i] = dom.NewText("t")
		id := r.IDOf(nodes[i])
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestIDOfConcurrent(t *testing.T) {
	r := NewRegistry()
	n := dom.NewElement("div", nil)

	var wg sync.WaitGroup
	ids := make([]int, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.IDOf(n)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}
