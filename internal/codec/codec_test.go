package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridsim/ev-tariff-storage/internal/storage"
)

func newTestState() *storage.State {
	return storage.New(storage.Config{UnitCapacity: 6, MaxHorizon: 8}, func() float64 { return 1000 })
}

func TestGather_FormatsSixDecimalPlaces(t *testing.T) {
	s := newTestState()
	s.RestoreCells(10, []storage.CellView{
		{Timeslot: 10, Chargers: 1.5, Population: []float64{1}, Energy: []float64{6}},
	})
	text := Gather(s, 10)
	assert.Equal(t, "[[10, 1.500000, [1.000000], [6.000000]]]", text)
}

func TestGather_EmptyHorizon(t *testing.T) {
	s := newTestState()
	assert.Equal(t, "[]", Gather(s, 0))
}

func TestRoundTrip_S6(t *testing.T) {
	s := newTestState()
	s.RestoreCells(100, []storage.CellView{
		{Timeslot: 100, Chargers: 3.333333, Population: []float64{1.111111, 2.222222}, Energy: []float64{9.999999, 0}},
		{Timeslot: 101, Chargers: 0, Population: []float64{5}, Energy: []float64{30}},
	})

	text := Gather(s, 100)

	fresh := newTestState()
	err := Restore(fresh, 100, text)
	assert.NoError(t, err)

	got := fresh.ActiveCells(100)
	assert.Len(t, got, 2)
	assert.Equal(t, 100, got[0].Timeslot)
	assert.InDelta(t, 3.333333, got[0].Chargers, 1e-6)
	assert.InDeltaSlice(t, []float64{1.111111, 2.222222}, got[0].Population, 1e-6)
	assert.InDeltaSlice(t, []float64{9.999999, 0}, got[0].Energy, 1e-6)
	assert.Equal(t, 101, got[1].Timeslot)
	assert.InDeltaSlice(t, []float64{5}, got[1].Population, 1e-6)
}

func TestRestore_AbortsOnMalformedInput(t *testing.T) {
	s := newTestState()
	s.RestoreCells(1, []storage.CellView{
		{Timeslot: 1, Chargers: 1, Population: []float64{1}, Energy: []float64{6}},
	})

	err := Restore(s, 1, "[[1, 1.0, [1.0], [6.0]]")
	assert.Error(t, err)
	assert.Empty(t, s.ActiveCells(1), "a failed restore leaves the target state empty, not partially applied")
}

func TestRestore_RejectsMismatchedArrayLengths(t *testing.T) {
	s := newTestState()
	err := Restore(s, 1, "[[1, 1.000000, [1.000000, 2.000000], [6.000000]]]")
	assert.Error(t, err)
	assert.Empty(t, s.ActiveCells(1))
}

func TestRestore_EmptyState(t *testing.T) {
	s := newTestState()
	s.RestoreCells(1, []storage.CellView{
		{Timeslot: 1, Chargers: 1, Population: []float64{1}, Energy: []float64{6}},
	})
	err := Restore(s, 1, "[]")
	assert.NoError(t, err)
	assert.Empty(t, s.ActiveCells(1))
}
