package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsim/ev-tariff-storage/internal/storage"
	"github.com/gridsim/ev-tariff-storage/internal/ws"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

func writeScenarioFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestRunScenario_DrivesEngineThroughEveryTick(t *testing.T) {
	path := writeScenarioFile(t, `timeslot,horizon,nVehicles,distribution,regulation,actualUsage
0,0,4,1.0,0,10.0
1,0,2,1.0,0,6.0
`)

	engine := storage.New(storage.Config{UnitCapacity: 6, MaxHorizon: 12}, func() float64 { return 100 })
	engines := map[string]*storage.State{"flat-rate": engine}

	hub := ws.NewHub()
	bridge := ws.NewBridge(hub)

	logger := testLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		runScenario(ctx, path, time.Millisecond, engines, bridge, logger)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runScenario did not complete in time")
	}

	minKWh, maxKWh, nominalKWh := engine.GetMinMax(1)
	assert.GreaterOrEqual(t, maxKWh, minKWh)
	assert.GreaterOrEqual(t, nominalKWh, minKWh)
}

func TestRunScenario_MissingFileLogsAndReturns(t *testing.T) {
	engines := map[string]*storage.State{
		"flat-rate": storage.New(storage.Config{UnitCapacity: 6, MaxHorizon: 12}, func() float64 { return 1 }),
	}
	hub := ws.NewHub()
	bridge := ws.NewBridge(hub)

	done := make(chan struct{})
	go func() {
		runScenario(context.Background(), "/nonexistent/scenario.csv", time.Millisecond, engines, bridge, testLogger())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runScenario should return immediately when the file cannot be opened")
	}
}

func TestSnapshotPayloadRoundTrips(t *testing.T) {
	msg, err := ws.NewEnvelope(ws.TypeSnapshot, ws.SnapshotPayload{
		Tariff: "flat-rate", Timeslot: 3, MinKWh: 1, MaxKWh: 2, NominalKWh: 1.5, Checksum: "x",
	})
	require.NoError(t, err)

	var env ws.Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, ws.TypeSnapshot, env.Type)

	var payload ws.SnapshotPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "flat-rate", payload.Tariff)
	assert.Equal(t, 3, payload.Timeslot)
	assert.InDelta(t, 1.5, payload.NominalKWh, 1e-9)
	assert.Equal(t, "x", payload.Checksum)
}
