package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetguard/governor/broadcast"
	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/ids"
	"github.com/fleetguard/governor/mission"
	"github.com/fleetguard/governor/planner"
	"github.com/fleetguard/governor/policy"
	"github.com/fleetguard/governor/simulator"
	"github.com/fleetguard/governor/store"
)

// runState is the Controller's single-writer state for one run: only the
// run's own loop goroutine ever mutates it (spec.md §4.7 "Transitions are
// single-writer: the loop task"), guarded by mu solely so concurrent
// readers (Controller.GetRun) see a consistent snapshot.
type runState struct {
	mu                   sync.RWMutex
	run                  *core.Run
	missionID            string
	goal                 planner.Goal
	instruction          string
	consecutiveSimFails  int
	lastGovernance       *core.GovernanceDecision
	world                *planner.WorldState
}

func (s *runState) status() core.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.Status
}

func (s *runState) setStatus(status core.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Status = status
	if status.IsTerminal() {
		now := time.Now()
		s.run.EndedAt = &now
	}
}

// Controller is the Run Controller: it owns the tick loop described in
// spec.md §4.7, wiring the Simulator Adapter, a Planner, the Policy
// Evaluator, the Event/Telemetry Stores, the Broadcaster, and the Mission
// Store together. One Controller is shared by every run in the process;
// per-run state lives in runState, indexed by Registry.
type Controller struct {
	cfg       *core.Config
	sim       *simulator.Adapter
	events    store.EventStore
	telemetry store.TelemetryStore
	hub       *broadcast.Hub
	missions  *mission.Store
	registry  *Registry
	logger    core.Logger
	tel       core.Telemetry

	mu   sync.RWMutex
	runs map[string]*runState

	newPlanner func() planner.Planner
}

// New builds a Controller. newPlanner is called once per run to obtain a
// fresh Planner instance (agentic planners carry per-run memory, so they
// must not be shared across runs).
func New(cfg *core.Config, sim *simulator.Adapter, events store.EventStore, telemetryStore store.TelemetryStore, hub *broadcast.Hub, missions *mission.Store, logger core.Logger, tel core.Telemetry, newPlanner func() planner.Planner) *Controller {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	if tel == nil {
		tel = core.NewNoOpTelemetry()
	}
	return &Controller{
		cfg:        cfg,
		sim:        sim,
		events:     events,
		telemetry:  telemetryStore,
		hub:        hub,
		missions:   missions,
		registry:   NewRegistry(),
		logger:     logger,
		tel:        tel,
		runs:       map[string]*runState{},
		newPlanner: newPlanner,
	}
}

// GetRun returns the current in-memory Run record, or nil if unknown.
func (c *Controller) GetRun(runID string) *core.Run {
	c.mu.RLock()
	st, ok := c.runs[runID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	run := *st.run
	return &run
}

// Start creates a new Run for missionID and spawns its loop goroutine.
// It performs spec.md §4.7's "Plan seeding": one direct-planner call
// against current telemetry, recorded as a PLAN event, before the tick
// loop begins.
func (c *Controller) Start(ctx context.Context, missionID string, goal planner.Goal, instruction string) (*core.Run, error) {
	run := &core.Run{
		ID:        ids.NewRunID(),
		MissionID: missionID,
		Status:    core.RunRunning,
		StartedAt: time.Now(),
	}
	st := &runState{run: run, missionID: missionID, goal: goal, instruction: instruction}

	c.mu.Lock()
	c.runs[run.ID] = st
	c.mu.Unlock()

	if _, err := c.missions.Start(missionID); err != nil {
		c.logger.Warn("mission start transition failed", map[string]interface{}{"mission_id": missionID, "error": err.Error()})
	}

	c.seedPlan(ctx, run.ID, st)

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	if err := c.registry.register(run.ID, cancel, done); err != nil {
		cancel()
		return nil, err
	}

	go c.runLoop(loopCtx, run.ID, st, done)

	return run, nil
}

// Resume relaunches the loop goroutine for a running run that this
// Controller already holds in memory but that has no live goroutine,
// without creating a new Run record. It does not load runs from a store,
// so after a process restart it returns ErrNotFound, and it does not
// rebuild the plan queue from PLAN events. It is idempotent: calling it on
// an already-running run is a no-op.
func (c *Controller) Resume(ctx context.Context, runID string) error {
	c.mu.RLock()
	st, ok := c.runs[runID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run %s: %w", runID, core.ErrNotFound)
	}
	if c.registry.IsRunning(runID) {
		return nil
	}
	if st.status() != core.RunRunning {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	if err := c.registry.register(runID, cancel, done); err != nil {
		cancel()
		return err
	}
	go c.runLoop(loopCtx, runID, st, done)
	return nil
}

// Stop signals the run's loop goroutine to exit; it transitions to
// RunStopped at the top of its next tick (spec.md §4.7 "Stop").
func (c *Controller) Stop(runID string) error {
	_, err := c.registry.Stop(runID)
	return err
}

func (c *Controller) seedPlan(ctx context.Context, runID string, st *runState) {
	direct := planner.NewDirectPlanner(nil, c.logger)
	sample := c.latestTelemetrySample(ctx, runID)
	proposal, _, model, err := direct.Propose(ctx, sample, st.goal, st.instruction, nil, nil)
	if err != nil {
		c.logger.Warn("plan seeding failed, continuing without a PLAN event", map[string]interface{}{"run_id": runID, "error": err.Error()})
		return
	}
	waypoints := []map[string]interface{}{}
	if proposal.Intent == core.IntentMoveTo {
		waypoints = append(waypoints, proposal.Params)
		c.registry.SeedPlanQueue(runID, waypoints)
	}
	payload := map[string]interface{}{
		"model":     model,
		"waypoints": waypoints,
		"rationale": proposal.Rationale,
	}
	if _, err := c.events.Append(ctx, runID, core.EventPlan, payload, time.Now()); err != nil {
		c.logger.Warn("failed to append PLAN event", map[string]interface{}{"run_id": runID, "error": err.Error()})
	}
}

func (c *Controller) latestTelemetrySample(ctx context.Context, runID string) core.TelemetrySample {
	tel, err := c.sim.GetTelemetry(ctx)
	if err != nil {
		return core.TelemetrySample{RunID: runID, Timestamp: time.Now(), Payload: map[string]interface{}{}}
	}
	return telemetryToSample(runID, tel)
}

func telemetryToSample(runID string, t *simulator.Telemetry) core.TelemetrySample {
	return core.TelemetrySample{
		RunID:     runID,
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"x":                  t.X,
			"y":                  t.Y,
			"theta":              t.Theta,
			"speed":              t.Speed,
			"zone":               t.Zone,
			"nearest_obstacle_m": t.NearestObstacleM,
			"human_detected":     t.HumanDetected,
			"human_conf":         t.HumanConf,
			"human_distance_m":   t.HumanDistanceM,
		},
	}
}

// runLoop is the per-run tick loop (spec.md §4.7 "Loop tick"), grounded on
// orchestration.TaskWorkerPool.runWorker's cooperative-cancellation shape.
func (c *Controller) runLoop(ctx context.Context, runID string, st *runState, done chan struct{}) {
	defer close(done)
	defer c.registry.unregister(runID)

	pl := c.newPlanner()
	tick := c.cfg.Runtime.TickInterval
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}

	for {
		// 1. Check stop signal.
		select {
		case <-ctx.Done():
			st.setStatus(core.RunStopped)
			c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastStatus, Data: map[string]interface{}{"status": core.RunStopped}})
			return
		default:
		}

		// 2. Read current Run status; exit if not running (idempotent shutdown).
		if st.status() != core.RunRunning {
			return
		}

		if c.tick(ctx, runID, st, pl) {
			return
		}

		select {
		case <-ctx.Done():
			st.setStatus(core.RunStopped)
			c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastStatus, Data: map[string]interface{}{"status": core.RunStopped}})
			return
		case <-time.After(tick):
		}
	}
}

// tick executes one iteration of the loop and reports whether the run has
// reached a terminal state (completed/failed) and the loop should exit.
func (c *Controller) tick(ctx context.Context, runID string, st *runState, pl planner.Planner) (terminal bool) {
	tickCtx, span := c.tel.StartSpan(ctx, "runtime.tick")
	defer span.End()
	now := time.Now()

	// 3. getTelemetry()
	tel, err := c.sim.GetTelemetry(tickCtx)
	if err != nil {
		return c.handleSimulatorFailure(runID, st, err)
	}
	st.mu.Lock()
	st.consecutiveSimFails = 0
	st.mu.Unlock()

	sample := telemetryToSample(runID, tel)

	// 4. Append TelemetrySample; broadcast.
	if err := c.telemetry.Append(tickCtx, &sample); err != nil {
		return c.handleStoreFailure(runID, st, "telemetry_append", err)
	}
	c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastTelemetry, Data: sample.Payload})

	// 5. Broadcast simulator-reported events as alerts.
	for _, ev := range tel.Events {
		c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastAlert, Data: map[string]interface{}{"event": ev}})
	}

	world := c.worldFor(tickCtx, st)

	// 6. Plan queue head, or call the reasoning layer. NextWaypoint pops the
	// head here, so a waypoint is consumed whether or not it is approved.
	var proposal *core.ActionProposal
	var thoughts []core.ThoughtStep
	var model string
	if wp, ok := c.registry.NextWaypoint(runID); ok {
		proposal = &core.ActionProposal{Intent: core.IntentMoveTo, Params: wp, Rationale: "[plan-queue] consuming seeded waypoint"}
	} else {
		st.mu.RLock()
		goal, instruction, lastGov := st.goal, st.instruction, st.lastGovernance
		st.mu.RUnlock()
		proposal, thoughts, model, err = pl.Propose(tickCtx, sample, goal, instruction, lastGov, world)
		if err != nil {
			c.logger.Warn("reasoning layer failed, treating as WAIT", map[string]interface{}{"run_id": runID, "error": err.Error()})
			proposal = &core.ActionProposal{Intent: core.IntentWait, Params: map[string]interface{}{}, Rationale: "Reasoning unavailable."}
		}
	}

	// 7. Clamp max_speed to zone limit.
	clampToZoneLimit(proposal, c.cfg.Policy, tel.Zone)

	// 8. Evaluate policy; append DECISION.
	governance := policy.Evaluate(c.cfg.Policy, simTelemetryToPolicy(tel), proposal)
	st.mu.Lock()
	st.lastGovernance = &governance
	st.mu.Unlock()

	decisionPayload := map[string]interface{}{
		"telemetry":    sample.Payload,
		"mission_goal": map[string]interface{}{"x": st.goal.X, "y": st.goal.Y},
		"proposal":     proposalPayload(proposal),
		"governance":   governancePayload(governance),
		"model":        model,
	}
	if _, err := c.events.Append(tickCtx, runID, core.EventDecision, decisionPayload, now); err != nil {
		return c.handleStoreFailure(runID, st, "decision_append", err)
	}

	executed := false
	if governance.Decision == core.DecisionApproved {
		// 9. sendCommand; append EXECUTION.
		if _, err := c.sim.SendCommand(tickCtx, proposal); err != nil {
			c.logger.Warn("send command failed, skipping EXECUTION event this tick", map[string]interface{}{"run_id": runID, "error": err.Error()})
		} else {
			executed = true
			execPayload := map[string]interface{}{"intent": string(proposal.Intent), "params": proposal.Params}
			if _, err := c.events.Append(tickCtx, runID, core.EventExecution, execPayload, now); err != nil {
				return c.handleStoreFailure(runID, st, "execution_append", err)
			}
		}
	}

	// 10. Feed outcome back to agent memory.
	pl.RecordOutcome(proposal, governance, executed)

	// 11. Broadcast DECISION summary (+ ThoughtSteps if present).
	c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastEvent, Data: decisionPayload})
	if len(thoughts) > 0 {
		c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastReasoning, Data: map[string]interface{}{"thoughts": thoughts}})
	}
	c.recordMetrics(governance)

	// 12. STOP + APPROVED -> completed.
	if proposal.Intent == core.IntentStop && governance.Decision == core.DecisionApproved {
		st.setStatus(core.RunCompleted)
		c.registry.ClearPlanQueue(runID)
		if _, err := c.missions.Complete(st.missionID); err != nil {
			c.logger.Warn("mission complete transition failed", map[string]interface{}{"mission_id": st.missionID, "error": err.Error()})
		}
		c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastStatus, Data: map[string]interface{}{"status": core.RunCompleted}})
		return true
	}

	return false
}

func (c *Controller) worldFor(ctx context.Context, st *runState) *planner.WorldState {
	st.mu.RLock()
	cached := st.world
	st.mu.RUnlock()
	if cached != nil {
		return cached
	}
	w, err := c.sim.GetWorld(ctx)
	if err != nil {
		return nil
	}
	ws := &planner.WorldState{Geofence: planner.Rect{MinX: w.Geofence.MinX, MaxX: w.Geofence.MaxX, MinY: w.Geofence.MinY, MaxY: w.Geofence.MaxY}}
	for _, z := range w.Zones {
		ws.Zones = append(ws.Zones, planner.NamedRect{Name: z.Name, Rect: planner.Rect{MinX: z.Rect.MinX, MaxX: z.Rect.MaxX, MinY: z.Rect.MinY, MaxY: z.Rect.MaxY}})
	}
	for _, o := range w.Obstacles {
		ws.Obstacles = append(ws.Obstacles, planner.Point{X: o.X, Y: o.Y})
	}
	st.mu.Lock()
	st.world = ws
	st.mu.Unlock()
	return ws
}

// handleSimulatorFailure implements spec.md §7's SimulatorUnreachable
// handling: the tick is aborted cleanly, and after
// MaxConsecutiveSimFailures occurrences the run transitions to failed.
func (c *Controller) handleSimulatorFailure(runID string, st *runState, err error) (terminal bool) {
	st.mu.Lock()
	st.consecutiveSimFails++
	fails := st.consecutiveSimFails
	st.mu.Unlock()

	c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastAlert, Data: map[string]interface{}{"error": err.Error()}})

	max := c.cfg.Runtime.MaxConsecutiveSimFailures
	if max <= 0 {
		max = 3
	}
	if fails >= max {
		st.setStatus(core.RunFailed)
		c.registry.ClearPlanQueue(runID)
		if _, ferr := c.missions.Fail(st.missionID, fmt.Sprintf("simulator unreachable after %d consecutive failures", fails)); ferr != nil {
			c.logger.Warn("mission fail transition failed", map[string]interface{}{"mission_id": st.missionID, "error": ferr.Error()})
		}
		c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastStatus, Data: map[string]interface{}{"status": core.RunFailed}})
		return true
	}
	return false
}

// handleStoreFailure implements spec.md §7's StoreUnavailable handling:
// fatal for the current run.
func (c *Controller) handleStoreFailure(runID string, st *runState, op string, err error) (terminal bool) {
	c.logger.Error("store unavailable, failing run", map[string]interface{}{"run_id": runID, "op": op, "error": err.Error()})
	st.setStatus(core.RunFailed)
	c.registry.ClearPlanQueue(runID)
	if _, ferr := c.missions.Fail(st.missionID, fmt.Sprintf("store unavailable during %s", op)); ferr != nil {
		c.logger.Warn("mission fail transition failed", map[string]interface{}{"mission_id": st.missionID, "error": ferr.Error()})
	}
	c.hub.Broadcast(runID, core.BroadcastMessage{Kind: core.BroadcastStatus, Data: map[string]interface{}{"status": core.RunFailed}})
	return true
}

func (c *Controller) recordMetrics(governance core.GovernanceDecision) {
	c.tel.RecordMetric("governor.decisions.total", 1, map[string]string{"decision": string(governance.Decision)})
	for _, hit := range governance.PolicyHits {
		c.tel.RecordMetric("governor.policy_hits.total", 1, map[string]string{"policy": hit})
	}
}

func clampToZoneLimit(proposal *core.ActionProposal, cfg core.PolicyConfig, zone string) {
	if proposal.Intent != core.IntentMoveTo || proposal.Params == nil {
		return
	}
	speed, ok := proposal.Params["max_speed"].(float64)
	if !ok {
		return
	}
	limit, known := cfg.ZoneSpeedLimits[zone]
	if !known {
		limit = 0.5
	}
	if speed > limit {
		proposal.Params["max_speed"] = limit
	}
}

func simTelemetryToPolicy(t *simulator.Telemetry) policy.Telemetry {
	workers := make([]policy.WalkingHuman, 0, len(t.WalkingHumans))
	for _, w := range t.WalkingHumans {
		workers = append(workers, policy.WalkingHuman{X: w.X, Y: w.Y, Conf: w.Conf})
	}
	return policy.Telemetry{
		X:                t.X,
		Y:                t.Y,
		Zone:             t.Zone,
		NearestObstacleM: t.NearestObstacleM,
		HumanDetected:    t.HumanDetected,
		HumanConf:        t.HumanConf,
		HumanDistanceM:   t.HumanDistanceM,
		WalkingHumans:    workers,
	}
}

func proposalPayload(p *core.ActionProposal) map[string]interface{} {
	return map[string]interface{}{"intent": string(p.Intent), "params": p.Params, "rationale": p.Rationale}
}

func governancePayload(g core.GovernanceDecision) map[string]interface{} {
	return map[string]interface{}{
		"decision":        string(g.Decision),
		"policy_hits":     g.PolicyHits,
		"reasons":         g.Reasons,
		"required_action": g.RequiredAction,
		"risk_score":      g.RiskScore,
		"policy_state":    string(g.PolicyState),
	}
}
