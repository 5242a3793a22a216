// Package storage implements the forward-looking storage-state engine: a
// per-subscription ring of future hourly commitments, and the five-phase
// per-timeslot protocol (regulation, collapse, rebalance, demand, usage)
// that keeps it consistent with the population it describes.
package storage

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/gridsim/ev-tariff-storage/internal/horizon"
)

// DefaultRingCapacity is the default horizon window: four days of hourly
// cells.
const DefaultRingCapacity = 96

// Accessor reads a subscription's current committed customer count. The
// engine reads population through this accessor but never owns the
// subscription — see spec.md §9's "opaque handle, not a shared owned
// pointer" re-architecture note.
type Accessor func() float64

// Config holds the per-subscription construction parameters.
type Config struct {
	// UnitCapacity is the rated per-charger hourly energy, in kW
	// (equivalently kWh per timeslot). Must be > 0.
	UnitCapacity float64
	// MaxHorizon is the furthest timeslot offset demand may be scheduled
	// (exclusive upper bound on DemandElement.Horizon). Must be > 1 and
	// <= RingCapacity.
	MaxHorizon int
	// RingCapacity is the horizon ring's fixed size. Defaults to
	// DefaultRingCapacity (96) if <= 0.
	RingCapacity int
}

// The five-phase per-timeslot protocol, in the order callers must invoke
// them (spec.md §4.4). Query (getMinMax) is allowed any time after Demand
// has run for the current t and does not itself advance the phase.
const (
	phaseRegulation = iota
	phaseCollapse
	phaseRebalance
	phaseDemand
	phaseUsage
)

// State is the engine proper: it owns one horizon.Ring of Elements and is
// bound to exactly one tariff subscription via customersCommitted.
//
// State is not safe for concurrent use — see spec.md §5: one State
// belongs to one subscription, mutated by the simulation driver on its
// timeslot tick, with no internal suspension point.
type State struct {
	ring               *horizon.Ring[Element]
	unitCapacity       float64
	maxHorizon         int
	customersCommitted Accessor

	nextT int // -1 until the first DistributeRegulation call
	phase int
}

// New constructs a StorageState bound to a subscription's population
// accessor.
func New(cfg Config, customersCommitted Accessor) *State {
	ringCap := cfg.RingCapacity
	if ringCap <= 0 {
		ringCap = DefaultRingCapacity
	}
	return &State{
		ring:               horizon.New[Element](ringCap),
		unitCapacity:       cfg.UnitCapacity,
		maxHorizon:         cfg.MaxHorizon,
		customersCommitted: customersCommitted,
		nextT:              -1,
		phase:              phaseRegulation,
	}
}

// UnitCapacity returns the configured per-charger hourly energy (kW).
func (s *State) UnitCapacity() float64 { return s.unitCapacity }

// MaxHorizon returns the configured furthest demand horizon.
func (s *State) MaxHorizon() int { return s.maxHorizon }

// RingCapacity returns the horizon ring's fixed size.
func (s *State) RingCapacity() int { return s.ring.Capacity() }

// beginOrCheck enforces the canonical per-timeslot phase order. A call for
// a new t must start at phaseRegulation; calls within the same t must
// arrive in strictly ascending phase order. Out-of-order calls are
// programming errors and panic — see spec.md §7: "fail loudly; these
// cannot be recovered."
func (s *State) beginOrCheck(t, want int, op string) {
	if t != s.nextT {
		if want != phaseRegulation {
			panic(&ProgrammingError{Op: op, Msg: fmt.Sprintf(
				"timeslot %d called before distributeRegulation; engine is mid-cycle on timeslot %d", t, s.nextT)})
		}
		s.nextT = t
		s.phase = phaseRegulation
	}
	if want != s.phase {
		panic(&ProgrammingError{Op: op, Msg: fmt.Sprintf(
			"timeslot %d: called out of order (expected phase %d, got %d)", t, s.phase, want)})
	}
	s.phase = want + 1
}

// checkQuery verifies getMinMax is called after distributeDemand for the
// current cycle, without advancing the phase (it may be called any number
// of times before distributeUsage).
func (s *State) checkQuery(t int, op string) {
	if t != s.nextT || s.phase < phaseUsage {
		panic(&ProgrammingError{Op: op, Msg: fmt.Sprintf(
			"timeslot %d: getMinMax called before distributeDemand completed", t)})
	}
}

// activeRange iterates h = 0..ActiveLength(t)-1, calling fn(ts, cell) for
// every populated cell.
func (s *State) activeRange(t int, fn func(ts int, cell *Element)) {
	active := s.ring.ActiveLength(t)
	for h := 0; h < active; h++ {
		ts := t + h
		cell, ok := s.ring.Get(ts)
		if !ok {
			continue
		}
		fn(ts, cell)
	}
}

// DistributeRegulation applies an externally-signalled deviation from
// planned consumption to every cell from t forward, excluding each cell's
// must-run bucket 0. r > 0 (up-regulation) adds energy back; r < 0
// (down-regulation) removes it. Must run before DistributeDemand in the
// canonical per-timeslot order (spec.md §4.4(a)).
//
// Returns an *InfeasibleRegulationError if |r| exceeds the regulable
// flexibility of the horizon; the applied ratio is clipped to the feasible
// bound and execution continues — this is a soft-repair condition, not a
// programming error.
func (s *State) DistributeRegulation(t int, r float64) error {
	s.beginOrCheck(t, phaseRegulation, "distributeRegulation")

	totalRegulable := 0.0
	s.activeRange(t, func(ts int, cell *Element) {
		for i := 1; i < cell.Len(); i++ {
			totalRegulable += math.Min(cell.PopulationAt(i)*s.unitCapacity, cell.EnergyAt(i))
		}
	})

	if totalRegulable <= 0 || nearZero(totalRegulable) {
		if r != 0 {
			log.Printf("storage: distributeRegulation(t=%d, r=%.6f): no regulable flexibility, dropping", t, r)
			return &InfeasibleRegulationError{Requested: r, Feasible: 0}
		}
		return nil
	}

	raw := -r / totalRegulable
	ratio := raw
	var feasErr error
	// nearlyEqual absorbs the case where r lands exactly at the feasible
	// boundary but floating-point division pushes raw a hair past ±1:
	// that's still clipped, but it isn't reported as exceeding feasibility.
	if raw > 1 {
		ratio = 1
		if !nearlyEqual(raw, 1) {
			log.Printf("storage: distributeRegulation(t=%d, r=%.6f): exceeds feasible flexibility %.6f, clipping", t, r, totalRegulable)
			feasErr = &InfeasibleRegulationError{Requested: r, Feasible: totalRegulable}
		}
	} else if raw < -1 {
		ratio = -1
		if !nearlyEqual(raw, -1) {
			log.Printf("storage: distributeRegulation(t=%d, r=%.6f): exceeds feasible flexibility %.6f, clipping", t, r, totalRegulable)
			feasErr = &InfeasibleRegulationError{Requested: r, Feasible: totalRegulable}
		}
	}

	s.activeRange(t, func(ts int, cell *Element) {
		for i := 1; i < cell.Len(); i++ {
			chunk := math.Min(cell.PopulationAt(i)*s.unitCapacity, cell.EnergyAt(i))
			cell.SetEnergyAt(i, cell.EnergyAt(i)-chunk*ratio)
		}
	})

	return feasErr
}

// CollapseElements shrinks every active cell's bucket count by one,
// folding the trailing bucket's residual into bucket k-2 first. A
// one-bucket cell (the current hour, typically) is left unchanged. Must
// run after DistributeRegulation and before Rebalance.
func (s *State) CollapseElements(t int) {
	s.beginOrCheck(t, phaseCollapse, "collapseElements")

	s.activeRange(t, func(ts int, cell *Element) {
		k := cell.Len()
		if k <= 1 {
			return
		}
		last := k - 1
		lastPop := cell.PopulationAt(last)
		lastEnergy := cell.EnergyAt(last)

		cell.SetPopulationAt(last-1, cell.PopulationAt(last-1)+lastPop)
		if lastEnergy < -zeroTolerance {
			log.Printf("storage: collapseElements at ts %d: trailing bucket energy %.6f below zero, zeroing", ts, lastEnergy)
			cell.SetEnergyAt(last, 0)
		} else if lastEnergy > 0 {
			cell.SetEnergyAt(last-1, cell.EnergyAt(last-1)+lastEnergy)
		}
		cell.Collapse()
	})
}

// Rebalance restores the cohort-width invariant (spec.md §3) after
// exogenous disturbance: for each cell at ts > t, buckets are walked in
// increasing index so a move at bucket i can cascade into bucket i-1's
// own already-visited state. Conserves each cell's total population,
// total energy, and activeChargers exactly (spec.md §8 property 5).
func (s *State) Rebalance(t int) {
	s.beginOrCheck(t, phaseRebalance, "rebalance")

	active := s.ring.ActiveLength(t)
	for h := 1; h < active; h++ {
		ts := t + h
		cell, ok := s.ring.Get(ts)
		if !ok {
			continue
		}
		k := cell.Len()
		for i := 1; i < k; i++ {
			pop := cell.PopulationAt(i)
			chunk := pop * s.unitCapacity
			if chunk <= 0 {
				continue
			}
			ratio := (cell.EnergyAt(i) - chunk*float64(k-i-1)) / chunk
			if ratio > 1.5 {
				log.Printf("storage: rebalance at ts %d bucket %d: ratio %.6f exceeds 1.5, treating as corrupted and clipping", ts, i, ratio)
				ratio = 1.5
			}
			if ratio <= 0.5 {
				continue
			}

			// The over-energized share of bucket i (move, as a fraction of
			// its population) carries its matching energy share with it as
			// it moves up into bucket i-1 — this is what "recomputing from
			// the invariant" amounts to for a population/energy pair that
			// must move together, and it conserves this cell's population
			// and energy sums exactly by construction (spec.md §8 property
			// 5), unlike independently re-deriving each bucket's energy
			// from its target-invariant formula.
			move := ratio - 0.5
			movedPop := move * pop
			movedEnergy := move * cell.EnergyAt(i)

			newPopI := pop - movedPop
			newPopIm1 := cell.PopulationAt(i-1) + movedPop
			newEnergyI := cell.EnergyAt(i) - movedEnergy
			newEnergyIm1 := cell.EnergyAt(i-1) + movedEnergy

			cell.SetPopulationAt(i, newPopI)
			cell.SetPopulationAt(i-1, newPopIm1)
			cell.SetEnergyAt(i-1, newEnergyIm1)
			cell.SetEnergyAt(i, newEnergyI)
		}
	}
}

// DistributeDemand folds newDemand (sorted ascending by Horizon) into the
// horizon starting at t, scaled by ratio (this tariff's share of the total
// customer population). Ensures cells exist from t up to t plus the
// largest Horizon in newDemand (the configured MaxHorizon is not read), credits
// activations (the pro-rated new-arrival count) into every cell's
// activeChargers, and decrements activations only after a cohort's own
// departure cell has been credited — so departing vehicles still count
// toward activeChargers in their departure hour (spec.md §4.4(d)).
func (s *State) DistributeDemand(t int, newDemand []DemandElement, ratio float64) {
	s.beginOrCheck(t, phaseDemand, "distributeDemand")
	s.ring.Clean(t)

	if len(newDemand) == 0 {
		return
	}

	activations := 0.0
	maxHorizon := 0
	for _, de := range newDemand {
		activations += de.NVehicles * ratio
		if de.Horizon > maxHorizon {
			maxHorizon = de.Horizon
		}
	}
	maxTs := t + maxHorizon

	di := 0
	for ts := t; ts <= maxTs; ts++ {
		k := ts - t + 1
		cell, ok := s.ring.Get(ts)
		if !ok {
			cell = NewElement(k)
			s.ring.Set(ts, cell)
		}
		cell.AddChargers(activations)

		for di < len(newDemand) && newDemand[di].Horizon == ts-t {
			de := newDemand[di]
			n := de.NVehicles * ratio
			kk := cell.Len()
			limit := kk
			if len(de.Distribution) < limit {
				limit = len(de.Distribution)
			}
			popAdded := make([]float64, limit)
			energyAdded := make([]float64, limit)
			for ix := 0; ix < limit; ix++ {
				popAdded[ix] = n * de.Distribution[ix]
				energyAdded[ix] = s.unitCapacity * popAdded[ix] * (float64(kk-ix) - 0.5)
			}
			cell.AddCommitments(popAdded, energyAdded)
			activations -= n
			di++
		}
	}
}

// GetMinMax returns the (min, max, nominal) bounds on what may be consumed
// this hour: min is the must-run commitment, max adds every flexible
// bucket's headroom, nominal is their midpoint. Callable any number of
// times after DistributeDemand has run for t, before DistributeUsage.
func (s *State) GetMinMax(t int) (minKWh, maxKWh, nominalKWh float64) {
	s.checkQuery(t, "getMinMax")

	if cell0, ok := s.ring.Get(t); ok {
		minKWh = cell0.EnergyAt(0)
	}

	active := s.ring.ActiveLength(t)
	for h := 1; h < active; h++ {
		ts := t + h
		cell, ok := s.ring.Get(ts)
		if !ok {
			continue
		}
		minKWh += math.Min(cell.PopulationAt(0)*s.unitCapacity, cell.EnergyAt(0))
	}

	maxKWh = minKWh
	for h := 1; h < active; h++ {
		ts := t + h
		cell, ok := s.ring.Get(ts)
		if !ok {
			continue
		}
		for i := 1; i < cell.Len(); i++ {
			maxKWh += math.Min(cell.PopulationAt(i)*s.unitCapacity, cell.EnergyAt(i))
		}
	}

	nominalKWh = (minKWh + maxKWh) / 2
	return minKWh, maxKWh, nominalKWh
}

// DistributeUsage applies actual delivered energy c against the
// commitment: cell t is fully satisfied, every future cell's must-run
// bucket runs at full power, and any remainder (or shortfall) is spread
// across flexible buckets in proportion to their own headroom.
func (s *State) DistributeUsage(t int, c float64) {
	s.beginOrCheck(t, phaseUsage, "distributeUsage")

	if cell0, ok := s.ring.Get(t); ok {
		if cell0.Len() > 1 {
			log.Printf("storage: distributeUsage at ts %d: current cell has %d buckets (expected 1), draining in priority order", t, cell0.Len())
			for i := 0; i < cell0.Len() && c > 0; i++ {
				e := cell0.EnergyAt(i)
				draw := math.Min(e, c)
				cell0.SetEnergyAt(i, e-draw)
				c -= draw
			}
		} else {
			c -= cell0.EnergyAt(0)
			cell0.SetEnergyAt(0, 0)
		}
	}

	active := s.ring.ActiveLength(t)
	for h := 1; h < active; h++ {
		ts := t + h
		cell, ok := s.ring.Get(ts)
		if !ok {
			continue
		}
		must := cell.PopulationAt(0) * s.unitCapacity
		cell.SetEnergyAt(0, cell.EnergyAt(0)-must)
		c -= must
	}

	remainingDemand := 0.0
	for h := 1; h < active; h++ {
		ts := t + h
		cell, ok := s.ring.Get(ts)
		if !ok {
			continue
		}
		for i := 1; i < cell.Len(); i++ {
			remainingDemand += math.Min(cell.PopulationAt(i)*s.unitCapacity, cell.EnergyAt(i))
		}
	}

	if remainingDemand <= 0 || nearZero(remainingDemand) {
		return
	}
	capacityRatio := c / remainingDemand

	for h := 1; h < active; h++ {
		ts := t + h
		cell, ok := s.ring.Get(ts)
		if !ok {
			continue
		}
		for i := 1; i < cell.Len(); i++ {
			chunk := math.Min(cell.PopulationAt(i)*s.unitCapacity, cell.EnergyAt(i))
			cell.SetEnergyAt(i, cell.EnergyAt(i)-chunk*capacityRatio)
		}
	}
}

// MoveSubscribers splits a fraction of old's population (and its entire
// committed horizon) into dst, called on the destination engine before
// subscription counts are updated elsewhere. fraction = count /
// old.customersCommitted(). If dst was previously empty its ring is
// replaced outright with scaled copies of old's cells; otherwise matching
// cells are added element-wise (DESIGN.md Open Question 2: this
// implements the spec's intended additive semantics, not the source's
// overwrite quirk, because the additive form is required for the
// conservation invariant spec.md §8 property 4 states as binding).
// old's cells are always scaled down by 1-fraction afterward.
//
// Panics (a programming error, not a soft repair) if a matching
// destination cell exists at a different horizon length than its source
// counterpart.
func (dst *State) MoveSubscribers(t int, count float64, old *State) {
	total := old.customersCommitted()
	if total == 0 {
		panic(&ProgrammingError{Op: "moveSubscribers", Msg: "source subscription has zero population"})
	}
	fraction := count / total

	oldActive := old.ring.ActiveLength(t)
	dstEmpty := dst.ring.ActiveLength(t) == 0

	if dstEmpty {
		dst.ring = horizon.New[Element](dst.ring.Capacity())
		dst.ring.Clean(t)
		for h := 0; h < oldActive; h++ {
			ts := t + h
			oc, ok := old.ring.Get(ts)
			if !ok {
				continue
			}
			dst.ring.Set(ts, oc.CopyScaled(fraction))
		}
	} else {
		dst.ring.Clean(t)
		for h := 0; h < oldActive; h++ {
			ts := t + h
			oc, ok := old.ring.Get(ts)
			if !ok {
				continue
			}
			dc, ok := dst.ring.Get(ts)
			if !ok {
				dst.ring.Set(ts, oc.CopyScaled(fraction))
				continue
			}
			if dc.Len() != oc.Len() {
				panic(&ProgrammingError{Op: "moveSubscribers", Msg: fmt.Sprintf(
					"cell at ts %d: source length %d != destination length %d", ts, oc.Len(), dc.Len())})
			}
			if err := dc.AddScaled(oc, fraction); err != nil {
				var mismatch *LengthMismatchError
				if errors.As(err, &mismatch) {
					mismatch.Timeslot = ts
				}
				panic(&ProgrammingError{Op: "moveSubscribers", Msg: err.Error()})
			}
		}
	}

	for h := 0; h < oldActive; h++ {
		ts := t + h
		oc, ok := old.ring.Get(ts)
		if !ok {
			continue
		}
		oc.Scale(1 - fraction)
	}
}

// CellView is a read-only snapshot of one horizon cell, used by
// internal/codec to serialise and restore state without exposing the
// ring's internals.
type CellView struct {
	Timeslot   int
	Chargers   float64
	Population []float64
	Energy     []float64
}

// ActiveCells returns a snapshot of every populated cell from t forward,
// in timeslot order.
func (s *State) ActiveCells(t int) []CellView {
	var out []CellView
	s.activeRange(t, func(ts int, cell *Element) {
		out = append(out, CellView{
			Timeslot:   ts,
			Chargers:   cell.ActiveChargers(),
			Population: cell.Population(),
			Energy:     cell.Energy(),
		})
	})
	return out
}

// RestoreCells replaces the engine's entire horizon with the given cells,
// anchoring the ring's valid write window at t (the engine's current
// timeslot at restore time), used by internal/codec.Restore to rebuild
// state from a boot record. A cell whose Timeslot falls outside
// [t, t+RingCapacity) is a corrupted boot record, not a soft-repair
// condition — Ring.Set panics rather than silently wrapping it onto an
// unrelated slot (spec.md §7).
func (s *State) RestoreCells(t int, cells []CellView) {
	s.ring = horizon.New[Element](s.ring.Capacity())
	s.ring.Clean(t)
	for _, cv := range cells {
		s.ring.Set(cv.Timeslot, NewElementFrom(cv.Chargers, cv.Population, cv.Energy))
	}
}
