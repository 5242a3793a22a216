package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridsim/ev-tariff-storage/internal/api"
	"github.com/gridsim/ev-tariff-storage/internal/codec"
	"github.com/gridsim/ev-tariff-storage/internal/config"
	"github.com/gridsim/ev-tariff-storage/internal/scenario"
	"github.com/gridsim/ev-tariff-storage/internal/snapshot"
	"github.com/gridsim/ev-tariff-storage/internal/storage"
	"github.com/gridsim/ev-tariff-storage/internal/subscription"
	"github.com/gridsim/ev-tariff-storage/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the driver configuration file")
	scenarioPath := flag.String("scenario", "", "optional CSV scenario file to replay against every tariff")
	tickInterval := flag.Duration("tick-interval", time.Second, "wall-clock delay between replayed scenario ticks")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	registry := subscription.New()
	engines := make(map[string]*storage.State, len(cfg.Tariffs))
	for _, t := range cfg.Tariffs {
		id := registry.Create(t.Name, t.InitialCount)
		engines[t.Name] = storage.New(t.ToEngineConfig(), registry.Accessor(id))
		logger.Printf("driver: registered tariff %q (unitCapacity=%.2f maxHorizon=%d)", t.Name, t.UnitCapacity, t.MaxHorizon)
	}

	hub := ws.NewHub()
	bridge := ws.NewBridge(hub)

	apiServer := api.New(api.Config{Listen: cfg.ListenAddr}, registry, logger)
	for name, engine := range engines {
		apiServer.RegisterTariff(name, engine)
	}
	apiServer.RegisterWebSocket("/ws", ws.NewHandler(hub))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- err
		}
	}()
	logger.Printf("driver: listening on %s (REST + /ws)", cfg.ListenAddr)

	if *scenarioPath != "" {
		go runScenario(ctx, *scenarioPath, *tickInterval, engines, bridge, logger)
	}

	logger.Printf("driver: running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Printf("driver: received signal %v, shutting down", sig)
		cancel()
	case err := <-errCh:
		logger.Printf("driver: component failed: %v", err)
		cancel()
		os.Exit(1)
	}

	logger.Printf("driver: stopped")
}

// runScenario replays a fixed scenario against every tariff's engine in
// lockstep, running the canonical per-timeslot phase order (regulation,
// collapse, rebalance, demand, query, usage) and broadcasting the
// resulting snapshot to WebSocket clients after each tick. This is a
// demo/test driver, not a production ingestion path — a production
// deployment would drive ticks from telemetry and the broker's own signals
// instead.
func runScenario(ctx context.Context, path string, interval time.Duration, engines map[string]*storage.State, bridge *ws.Bridge, logger *log.Logger) {
	f, err := os.Open(path)
	if err != nil {
		logger.Printf("scenario: failed to open %s: %v", path, err)
		return
	}
	defer f.Close()

	ticks, err := scenario.Load(f)
	if err != nil {
		logger.Printf("scenario: failed to load %s: %v", path, err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, tick := range ticks {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for name, engine := range engines {
			if err := engine.DistributeRegulation(tick.Timeslot, tick.Regulation); err != nil {
				logger.Printf("scenario: tariff %q: %v", name, err)
			}
			engine.CollapseElements(tick.Timeslot)
			engine.Rebalance(tick.Timeslot)
			engine.DistributeDemand(tick.Timeslot, tick.Demand, 1.0)

			minKWh, maxKWh, nominalKWh := engine.GetMinMax(tick.Timeslot)
			gathered := codec.Gather(engine, tick.Timeslot)
			bridge.OnSnapshot(ws.Snapshot{
				Tariff:     name,
				Timeslot:   tick.Timeslot,
				MinKWh:     minKWh,
				MaxKWh:     maxKWh,
				NominalKWh: nominalKWh,
				Checksum:   snapshot.Checksum(gathered),
			})

			engine.DistributeUsage(tick.Timeslot, tick.ActualUsage)
		}
	}
}
