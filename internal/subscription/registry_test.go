package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_CreateAndRead(t *testing.T) {
	r := New()
	id := r.Create("flat-rate", 1000)

	name, ok := r.Tariff(id)
	assert.True(t, ok)
	assert.Equal(t, "flat-rate", name)
	assert.InDelta(t, 1000, r.CustomersCommitted(id), 1e-9)
}

func TestRegistry_AccessorReflectsLiveState(t *testing.T) {
	r := New()
	id := r.Create("tou", 500)
	accessor := r.Accessor(id)
	assert.InDelta(t, 500, accessor(), 1e-9)

	r.Move(id, r.Create("tou-flex", 0), 200)
	assert.InDelta(t, 300, accessor(), 1e-9)
}

func TestRegistry_MoveConservesTotal(t *testing.T) {
	r := New()
	src := r.Create("a", 1000)
	dst := r.Create("b", 0)

	r.Move(src, dst, 400)

	assert.InDelta(t, 600, r.CustomersCommitted(src), 1e-9)
	assert.InDelta(t, 400, r.CustomersCommitted(dst), 1e-9)
}

func TestRegistry_RemoveDeletesSubscription(t *testing.T) {
	r := New()
	id := r.Create("a", 100)
	r.Remove(id)

	_, ok := r.Tariff(id)
	assert.False(t, ok)
	assert.InDelta(t, 0, r.CustomersCommitted(id), 1e-9)
}

func TestRegistry_AllListsEveryID(t *testing.T) {
	r := New()
	a := r.Create("a", 1)
	b := r.Create("b", 1)

	ids := r.All()
	assert.ElementsMatch(t, []ID{a, b}, ids)
}

func TestID_StringIsValidUUID(t *testing.T) {
	r := New()
	id := r.Create("a", 1)
	assert.Len(t, id.String(), 36)
}
