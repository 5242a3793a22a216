package horizon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_SetGet(t *testing.T) {
	r := New[int](8)
	r.Clean(10)
	v := 42
	r.Set(10, &v)

	got, ok := r.Get(10)
	assert.True(t, ok)
	assert.Equal(t, 42, *got)

	_, ok = r.Get(11)
	assert.False(t, ok)
}

func TestRing_WrapsModCapacityAfterClean(t *testing.T) {
	r := New[int](4)
	a, b := 1, 2
	r.Set(1, &a)
	r.Clean(4) // advance the window so slot 5 (index 1 mod 4) is writable again

	_, ok := r.Get(1)
	assert.False(t, ok, "Clean wiped the stale cell the new write wraps onto")

	r.Set(5, &b)

	got, ok := r.Get(5)
	assert.True(t, ok)
	assert.Equal(t, 2, *got) // same slot as 1, mod 4
	assert.Same(t, &b, got)
}

func TestRing_SetOutsideCleanWindowPanics(t *testing.T) {
	r := New[int](4)
	v := 1
	assert.Panics(t, func() { r.Set(5, &v) })
}

func TestRing_SetOutsideCleanWindowPanicsWithOutOfRangeError(t *testing.T) {
	r := New[int](4)
	v := 1
	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		oore, ok := rec.(*OutOfRangeError)
		require.True(t, ok, "expected *OutOfRangeError, got %T", rec)
		assert.Equal(t, 5, oore.Timeslot)
		assert.Equal(t, 0, oore.CleanBase)
		assert.Equal(t, 4, oore.Capacity)
	}()
	r.Set(5, &v)
}

func TestRing_ActiveLengthAndAsList(t *testing.T) {
	r := New[int](96)
	for i := 10; i < 13; i++ {
		v := i
		r.Set(i, &v)
	}

	assert.Equal(t, 3, r.ActiveLength(10))
	assert.Equal(t, 0, r.ActiveLength(9))

	list := r.AsList(10)
	assert.Len(t, list, 3)
	assert.Equal(t, 10, *list[0])
	assert.Equal(t, 12, *list[2])
}

func TestRing_Clean(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 3; i++ {
		v := i
		r.Set(i, &v)
	}

	// Base advances to 2; slot 3 is empty, so the active prefix starting at
	// 2 is slot 2 alone. Clean should wipe everything beyond it: positions
	// 3, 4, 5 (mod 4: 3, 0, 1), which removes the leftovers at 0 and 1.
	r.Clean(2)

	_, ok := r.Get(2)
	assert.True(t, ok, "active cell at the clean base must survive")

	for _, t2 := range []int{3, 4, 5} {
		_, ok := r.Get(t2)
		assert.False(t, ok, "stale cell at %d should have been cleared", t2)
	}
}

func TestRing_CleanThenExtend(t *testing.T) {
	r := New[int](4)
	v := 1
	r.Set(0, &v)
	r.Clean(0)

	w := 2
	r.Set(3, &w) // furthest slot still inside capacity from base 0
	got, ok := r.Get(3)
	assert.True(t, ok)
	assert.Equal(t, 2, *got)
}

func TestRing_NewPanicsOnNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
	assert.Panics(t, func() { New[int](-1) })
}
