// Package scenario loads deterministic demand/regulation/usage fixtures
// from CSV, for driving the storage engine in tests and local demos. It is
// not the stochastic arrival/departure generator spec.md §1 explicitly
// places outside the engine's scope — it is a fixed, reproducible
// replacement for it.
package scenario

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gridsim/ev-tariff-storage/internal/storage"
)

// Tick is one hourly row of a scenario: the new demand to distribute, the
// regulation signal, and the actual usage the broker reports back.
type Tick struct {
	Timeslot    int
	Demand      []storage.DemandElement
	Regulation  float64
	ActualUsage float64
}

// Load parses a CSV scenario file. Expected format, one row per
// (timeslot, demand cohort) pair — a timeslot with no new demand still
// needs one row with an empty distribution column:
//
//	timeslot,horizon,nVehicles,distribution,regulation,actualUsage
//	36,0,4,1.0,0,19.2
//
// distribution is a "|"-separated list of fractions. regulation and
// actualUsage are read from the first row seen for each timeslot; later
// rows for the same timeslot only contribute another demand cohort.
//
// Rows whose fields cannot be parsed are skipped silently: nothing is
// logged and no error is returned for them. Load still returns the ticks
// it could parse. A CSV-level read error (as opposed to a bad field) aborts
// the load with an error.
func Load(r io.Reader) ([]Tick, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("scenario: reading CSV header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	byTimeslot := make(map[int]*Tick)
	var order []int

	lineNum := 1
	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scenario: reading CSV line %d: %w", lineNum, err)
		}

		row, err := parseRow(record)
		if err != nil {
			continue
		}

		tick, ok := byTimeslot[row.timeslot]
		if !ok {
			tick = &Tick{Timeslot: row.timeslot, Regulation: row.regulation, ActualUsage: row.actualUsage}
			byTimeslot[row.timeslot] = tick
			order = append(order, row.timeslot)
		}
		if row.nVehicles > 0 {
			tick.Demand = append(tick.Demand, storage.NewDemandElement(row.horizon, row.nVehicles, 0, row.distribution))
		}
	}

	out := make([]Tick, 0, len(order))
	for _, ts := range order {
		tick := *byTimeslot[ts]
		// DistributeDemand assumes newDemand is sorted ascending by
		// Horizon; CSV row order makes no such guarantee.
		sort.Slice(tick.Demand, func(i, j int) bool {
			return tick.Demand[i].Horizon < tick.Demand[j].Horizon
		})
		out = append(out, tick)
	}
	return out, nil
}

func validateHeader(header []string) error {
	expected := []string{"timeslot", "horizon", "nVehicles", "distribution", "regulation", "actualUsage"}
	if len(header) < len(expected) {
		return fmt.Errorf("scenario: expected %d columns, got %d", len(expected), len(header))
	}
	for i, col := range expected {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("scenario: expected column %d to be %q, got %q", i, col, header[i])
		}
	}
	return nil
}

type row struct {
	timeslot     int
	horizon      int
	nVehicles    float64
	distribution []float64
	regulation   float64
	actualUsage  float64
}

func parseRow(record []string) (row, error) {
	if len(record) < 6 {
		return row{}, fmt.Errorf("scenario: expected 6 fields, got %d", len(record))
	}

	ts, err := strconv.Atoi(strings.TrimSpace(record[0]))
	if err != nil {
		return row{}, fmt.Errorf("scenario: parsing timeslot %q: %w", record[0], err)
	}
	horizon, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return row{}, fmt.Errorf("scenario: parsing horizon %q: %w", record[1], err)
	}
	nVehicles, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return row{}, fmt.Errorf("scenario: parsing nVehicles %q: %w", record[2], err)
	}

	var dist []float64
	if s := strings.TrimSpace(record[3]); s != "" {
		for _, part := range strings.Split(s, "|") {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return row{}, fmt.Errorf("scenario: parsing distribution entry %q: %w", part, err)
			}
			dist = append(dist, v)
		}
	}

	regulation, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
	if err != nil {
		return row{}, fmt.Errorf("scenario: parsing regulation %q: %w", record[4], err)
	}
	actualUsage, err := strconv.ParseFloat(strings.TrimSpace(record[5]), 64)
	if err != nil {
		return row{}, fmt.Errorf("scenario: parsing actualUsage %q: %w", record[5], err)
	}

	return row{
		timeslot:     ts,
		horizon:      horizon,
		nVehicles:    nVehicles,
		distribution: dist,
		regulation:   regulation,
		actualUsage:  actualUsage,
	}, nil
}
