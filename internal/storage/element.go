package storage

import (
	"fmt"
	"log"
)

// Element is a mutable per-timeslot cell: the count of active chargers
// expected at that hour, plus two equal-length histograms (population,
// energy) over remaining charger-hour buckets. Bucket 0 is the highest-need
// ("must-run") cohort; the last bucket is the lowest.
//
// Population() and Energy() return defensive copies, never the live
// backing slices — mutation only happens through the named methods below
// (see DESIGN.md, Open Question 1).
type Element struct {
	activeChargers float64
	population     []float64
	energy         []float64
}

// NewElement creates an empty cell of the given bucket length.
func NewElement(length int) *Element {
	return &Element{
		population: make([]float64, length),
		energy:     make([]float64, length),
	}
}

// NewElementFrom creates a cell from existing chargers/population/energy
// values. population and energy must have equal length.
func NewElementFrom(chargers float64, population, energy []float64) *Element {
	if len(population) != len(energy) {
		panic(fmt.Sprintf("storage: NewElementFrom: population length %d != energy length %d", len(population), len(energy)))
	}
	p := make([]float64, len(population))
	e := make([]float64, len(energy))
	copy(p, population)
	copy(e, energy)
	return &Element{activeChargers: chargers, population: p, energy: e}
}

// Len returns the cell's bucket count k.
func (e *Element) Len() int {
	return len(e.population)
}

// ActiveChargers returns the expected number of chargers plugged in during
// this cell's hour.
func (e *Element) ActiveChargers() float64 {
	return e.activeChargers
}

// Population returns a defensive copy of the population histogram.
func (e *Element) Population() []float64 {
	out := make([]float64, len(e.population))
	copy(out, e.population)
	return out
}

// Energy returns a defensive copy of the energy histogram.
func (e *Element) Energy() []float64 {
	out := make([]float64, len(e.energy))
	copy(out, e.energy)
	return out
}

// PopulationAt returns population[i], or 0 if i is out of range.
func (e *Element) PopulationAt(i int) float64 {
	if i < 0 || i >= len(e.population) {
		return 0
	}
	return e.population[i]
}

// EnergyAt returns energy[i], or 0 if i is out of range.
func (e *Element) EnergyAt(i int) float64 {
	if i < 0 || i >= len(e.energy) {
		return 0
	}
	return e.energy[i]
}

// SetEnergyAt clamps negative values to zero (§7: energy < 0 is an
// invariant violation repaired locally) and writes energy[i].
func (e *Element) SetEnergyAt(i int, v float64) {
	if i < 0 || i >= len(e.energy) {
		return
	}
	if v < -zeroTolerance {
		log.Printf("storage: element energy[%d] went negative (%.6f), clamping to 0", i, v)
		v = 0
	} else if v < 0 {
		v = 0
	}
	e.energy[i] = v
}

// SetPopulationAt clamps negative values to zero and writes population[i].
func (e *Element) SetPopulationAt(i int, v float64) {
	if i < 0 || i >= len(e.population) {
		return
	}
	if v < -zeroTolerance {
		log.Printf("storage: element population[%d] went negative (%.6f), clamping to 0", i, v)
		v = 0
	} else if v < 0 {
		v = 0
	}
	e.population[i] = v
}

// AddChargers adds delta to the active-charger count.
func (e *Element) AddChargers(delta float64) {
	e.activeChargers += delta
}

// AddCommitments adds pop/energy element-wise into the cell's histograms.
// pop and energy must have equal length, and may be shorter than the
// cell's own k — missing trailing entries are treated as zero.
func (e *Element) AddCommitments(pop, energy []float64) {
	for i, v := range pop {
		if i < len(e.population) {
			e.SetPopulationAt(i, e.population[i]+v)
		}
	}
	for i, v := range energy {
		if i < len(e.energy) {
			e.SetEnergyAt(i, e.energy[i]+v)
		}
	}
}

// Collapse reduces k by one by dropping the trailing bucket. The caller
// (StorageState.CollapseElements) is responsible for folding any residual
// energy/population in that bucket into bucket k-2 before calling this —
// Collapse itself performs only the shrink. A one-bucket cell is left
// unchanged, matching spec §4.3.
func (e *Element) Collapse() {
	if len(e.population) <= 1 {
		return
	}
	e.population = e.population[:len(e.population)-1]
	e.energy = e.energy[:len(e.energy)-1]
}

// CopyScaled returns an independent copy of the cell with every number
// multiplied by f.
func (e *Element) CopyScaled(f float64) *Element {
	out := NewElement(len(e.population))
	out.activeChargers = e.activeChargers * f
	for i := range e.population {
		out.population[i] = e.population[i] * f
		out.energy[i] = e.energy[i] * f
	}
	return out
}

// AddScaled adds other*f into e element-wise, in place. Arrays must match
// length (the two cells must come from engines at the same horizon),
// otherwise a LengthMismatchError is returned — this is the source/
// destination divergence spec §4.5 calls a fatal condition.
func (e *Element) AddScaled(other *Element, f float64) error {
	if len(other.population) != len(e.population) {
		return &LengthMismatchError{Got: len(other.population), Want: len(e.population)}
	}
	e.activeChargers += other.activeChargers * f
	for i := range e.population {
		e.SetPopulationAt(i, e.population[i]+other.population[i]*f)
		e.SetEnergyAt(i, e.energy[i]+other.energy[i]*f)
	}
	return nil
}

// Scale multiplies every number in the cell by f, in place.
func (e *Element) Scale(f float64) {
	e.activeChargers *= f
	for i := range e.population {
		e.population[i] *= f
		e.energy[i] *= f
	}
}

// String renders a bit-stable debug form: "ch{chargers:.3f} [pops...]
// [energies...]", per spec §4.3. This is a debug aid, not the codec's
// persistence grammar — see internal/codec for that.
func (e *Element) String() string {
	s := fmt.Sprintf("ch%.3f [", e.activeChargers)
	for i, p := range e.population {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%.3f", p)
	}
	s += "] ["
	for i, v := range e.energy {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%.3f", v)
	}
	s += "]"
	return s
}
