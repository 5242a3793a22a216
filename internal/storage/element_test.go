package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestElement_NewFromAndAccessors(t *testing.T) {
	e := NewElementFrom(4, []float64{1, 2, 3}, []float64{10, 20, 30})
	assert.Equal(t, 3, e.Len())
	assert.InDelta(t, 4, e.ActiveChargers(), equalityTolerance)
	assert.Equal(t, []float64{1, 2, 3}, e.Population())
	assert.Equal(t, []float64{10, 20, 30}, e.Energy())
}

func TestElement_PopulationAndEnergyAreDefensiveCopies(t *testing.T) {
	e := NewElementFrom(0, []float64{1, 2}, []float64{5, 6})
	pop := e.Population()
	pop[0] = 999
	assert.InDelta(t, 1, e.PopulationAt(0), equalityTolerance, "mutating the returned slice must not affect the element")
}

func TestElement_AddChargersAndCommitments(t *testing.T) {
	e := NewElement(2)
	e.AddChargers(3.5)
	assert.InDelta(t, 3.5, e.ActiveChargers(), equalityTolerance)

	e.AddCommitments([]float64{1, 2}, []float64{10, 20})
	assert.Equal(t, []float64{1, 2}, e.Population())
	assert.Equal(t, []float64{10, 20}, e.Energy())

	// Shorter arrays leave trailing entries untouched.
	e.AddCommitments([]float64{1}, []float64{5})
	assert.Equal(t, []float64{2, 2}, e.Population())
	assert.Equal(t, []float64{15, 20}, e.Energy())
}

func TestElement_CollapseDropsTrailingBucket(t *testing.T) {
	e := NewElementFrom(1, []float64{1, 2, 3}, []float64{10, 20, 30})
	e.Collapse()
	assert.Equal(t, 2, e.Len())
	assert.Equal(t, []float64{1, 2}, e.Population())
	assert.Equal(t, []float64{10, 20}, e.Energy())
}

func TestElement_CollapseOneBucketUnchanged(t *testing.T) {
	e := NewElementFrom(1, []float64{5}, []float64{50})
	e.Collapse()
	assert.Equal(t, 1, e.Len())
	assert.Equal(t, []float64{5}, e.Population())
}

func TestElement_CopyScaled(t *testing.T) {
	e := NewElementFrom(4, []float64{1, 2}, []float64{10, 20})
	c := e.CopyScaled(0.5)
	assert.InDelta(t, 2, c.ActiveChargers(), equalityTolerance)
	assert.Equal(t, []float64{0.5, 1}, c.Population())
	assert.Equal(t, []float64{5, 10}, c.Energy())

	// Original is untouched.
	assert.InDelta(t, 4, e.ActiveChargers(), equalityTolerance)
}

func TestElement_AddScaled(t *testing.T) {
	dst := NewElementFrom(1, []float64{1, 1}, []float64{10, 10})
	src := NewElementFrom(2, []float64{2, 2}, []float64{20, 20})

	err := dst.AddScaled(src, 0.5)
	assert.NoError(t, err)
	assert.InDelta(t, 2, dst.ActiveChargers(), equalityTolerance) // 1 + 2*0.5
	assert.Equal(t, []float64{2, 2}, dst.Population())            // 1 + 2*0.5
	assert.Equal(t, []float64{20, 20}, dst.Energy())
}

func TestElement_AddScaledLengthMismatch(t *testing.T) {
	dst := NewElement(2)
	src := NewElement(3)
	err := dst.AddScaled(src, 1)
	assert.Error(t, err)
	var mismatch *LengthMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestElement_Scale(t *testing.T) {
	e := NewElementFrom(4, []float64{1, 2}, []float64{10, 20})
	e.Scale(2)
	assert.InDelta(t, 8, e.ActiveChargers(), equalityTolerance)
	assert.Equal(t, []float64{2, 4}, e.Population())
	assert.Equal(t, []float64{20, 40}, e.Energy())
}

func TestElement_SetEnergyAtClampsNegative(t *testing.T) {
	e := NewElement(1)
	e.SetEnergyAt(0, -5)
	assert.InDelta(t, 0, e.EnergyAt(0), equalityTolerance)
}

func TestElement_String(t *testing.T) {
	e := NewElementFrom(1.5, []float64{1}, []float64{2})
	assert.Equal(t, "ch1.500 [1.000] [2.000]", e.String())
}
