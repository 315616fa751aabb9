// Command missiond wires the Governed Mission Runtime's components into a
// running process: Config, Simulator Adapter, Event/Telemetry Stores,
// Policy Evaluator (via runtime.Controller), a Planner, the Broadcaster,
// and the Mission Store — then starts one Run against a single bootstrap
// Mission, mirroring the teacher's core/cmd/example/main.go shape (build a
// component, initialize it, start it, log the outcome).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetguard/governor/broadcast"
	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/mission"
	"github.com/fleetguard/governor/planner"
	"github.com/fleetguard/governor/resilience"
	"github.com/fleetguard/governor/runtime"
	"github.com/fleetguard/governor/simulator"
	"github.com/fleetguard/governor/store"
	"github.com/fleetguard/governor/telemetry"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := telemetry.NewLoggerFromConfig("missiond", cfg.Logging)

	var tel core.Telemetry
	if provider, err := telemetry.NewProvider("governor-missiond"); err != nil {
		logger.Warn("telemetry provider unavailable, continuing without tracing/metrics", map[string]interface{}{"error": err.Error()})
		tel = core.NewNoOpTelemetry()
	} else {
		tel = provider
		defer provider.Shutdown(context.Background())
	}

	breaker := resilience.New(core.CircuitBreakerParams{
		Name:   "simulator",
		Config: cfg.Resilience.CircuitBreaker,
		Logger: logger.WithComponent("resilience.circuit_breaker"),
	})
	sim := simulator.New(cfg.Simulator, cfg.Resilience, logger.WithComponent("simulator"), breaker)

	events, telemetryStore := newStores(cfg, logger)
	hub := broadcast.New()
	missions := mission.New(core.NewSystemClock(), logger.WithComponent("mission"))

	cascade := planner.NewCascade(cfg.AI, logger.WithComponent("planner.provider"))
	newPlanner := func() planner.Planner {
		if !cascade.Available() {
			return planner.NewDirectPlanner(nil, logger.WithComponent("planner.direct"))
		}
		return planner.NewAgenticPlanner(cascade, cfg.Policy, logger.WithComponent("planner.agentic"))
	}

	ctrl := runtime.New(cfg, sim, events, telemetryStore, hub, missions, logger.WithComponent("runtime.controller"), tel, newPlanner)

	m := missions.Create("Deliver pallet to loading bay", map[string]interface{}{"x": 18.0, "y": 6.0})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := ctrl.Start(ctx, m.ID, planner.Goal{X: 18, Y: 6}, "Deliver the pallet to the loading bay without endangering nearby workers.")
	if err != nil {
		log.Fatalf("failed to start run: %v", err)
	}
	logger.Info("mission run started", map[string]interface{}{"mission_id": m.ID, "run_id": run.ID})

	sub := hub.Subscribe(run.ID)
	defer sub.Close()
	go func() {
		for msg := range sub.C {
			logger.Debug("broadcast", map[string]interface{}{"kind": string(msg.Kind)})
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping run", map[string]interface{}{"run_id": run.ID})
	if err := ctrl.Stop(run.ID); err != nil {
		logger.Warn("stop failed", map[string]interface{}{"run_id": run.ID, "error": err.Error()})
	}

	deadline := time.Now().Add(cfg.Runtime.ShutdownTimeout)
	for time.Now().Before(deadline) {
		if got := ctrl.GetRun(run.ID); got != nil && got.Status.IsTerminal() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func newStores(cfg *core.Config, logger *telemetry.Logger) (store.EventStore, store.TelemetryStore) {
	if cfg.Store.Backend != "redis" {
		return store.NewInMemoryEventStore(), store.NewInMemoryTelemetryStore()
	}

	events, err := store.NewRedisEventStore(cfg.Store.RedisURL,
		store.WithEventStoreLogger(logger.WithComponent("store.events")),
		store.WithEventStoreTTL(cfg.Store.TTL),
	)
	if err != nil {
		logger.Warn("redis event store unavailable, falling back to in-memory", map[string]interface{}{"error": err.Error()})
		return store.NewInMemoryEventStore(), store.NewInMemoryTelemetryStore()
	}
	telemetryStore, err := store.NewRedisTelemetryStore(cfg.Store.RedisURL,
		store.WithTelemetryStoreLogger(logger.WithComponent("store.telemetry")),
		store.WithTelemetryStoreTTL(cfg.Store.TTL),
	)
	if err != nil {
		logger.Warn("redis telemetry store unavailable, falling back to in-memory", map[string]interface{}{"error": err.Error()})
		return events, store.NewInMemoryTelemetryStore()
	}
	return events, telemetryStore
}
