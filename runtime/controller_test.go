package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetguard/governor/broadcast"
	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/mission"
	"github.com/fleetguard/governor/planner"
	"github.com/fleetguard/governor/simulator"
	"github.com/fleetguard/governor/store"
)

// fakePlanner always proposes the same thing until told to propose STOP.
type fakePlanner struct {
	stopNow   bool
	outcomes  []core.Decision
}

func (f *fakePlanner) Propose(ctx context.Context, telemetry core.TelemetrySample, goal planner.Goal, instruction string, lastGovernance *core.GovernanceDecision, world *planner.WorldState) (*core.ActionProposal, []core.ThoughtStep, string, error) {
	if f.stopNow {
		return &core.ActionProposal{Intent: core.IntentStop, Params: map[string]interface{}{}, Rationale: "test: goal reached"}, nil, "fake", nil
	}
	return &core.ActionProposal{
		Intent:    core.IntentMoveTo,
		Params:    map[string]interface{}{"x": goal.X, "y": goal.Y, "max_speed": 0.3},
		Rationale: "test: heading to goal",
	}, nil, "fake", nil
}

func (f *fakePlanner) RecordOutcome(proposal *core.ActionProposal, governance core.GovernanceDecision, wasExecuted bool) {
	f.outcomes = append(f.outcomes, governance.Decision)
}

// newFakeSimServer serves /world, /telemetry, /command with a small fixed
// warehouse so the Policy Evaluator always approves a slow MOVE_TO.
func newFakeSimServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/world", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(simulator.World{
			Geofence: simulator.Bounds{MinX: 0, MaxX: 40, MinY: 0, MaxY: 25},
		})
	})
	mux.HandleFunc("/telemetry", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(simulator.Telemetry{
			X: 1, Y: 1, Zone: "aisle", NearestObstacleM: 5, HumanDistanceM: 999,
		})
	})
	mux.HandleFunc("/command", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	})
	return httptest.NewServer(mux)
}

func newTestController(t *testing.T, pl planner.Planner) (*Controller, *mission.Store, string) {
	t.Helper()
	srv := newFakeSimServer(t)
	t.Cleanup(srv.Close)

	cfg := core.DefaultConfig()
	cfg.Simulator.BaseURL = srv.URL
	cfg.Runtime.TickInterval = 5 * time.Millisecond

	sim := simulator.New(cfg.Simulator, cfg.Resilience, nil, nil)
	events := store.NewInMemoryEventStore()
	telemetryStore := store.NewInMemoryTelemetryStore()
	hub := broadcast.New()
	missions := mission.New(nil, nil)

	m := missions.Create("Deliver pallet", map[string]interface{}{"x": 1.0, "y": 1.0})

	ctrl := New(cfg, sim, events, telemetryStore, hub, missions, nil, nil, func() planner.Planner { return pl })
	return ctrl, missions, m.ID
}

func TestControllerRunsToCompletionOnApprovedStop(t *testing.T) {
	pl := &fakePlanner{stopNow: true}
	ctrl, missions, missionID := newTestController(t, pl)

	run, err := ctrl.Start(context.Background(), missionID, planner.Goal{X: 1, Y: 1}, "deliver pallet")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := ctrl.GetRun(run.ID)
		if got != nil && got.Status == core.RunCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := ctrl.GetRun(run.ID)
	require.NotNil(t, got)
	assert.Equal(t, core.RunCompleted, got.Status)

	m := missions.Get(missionID)
	assert.Equal(t, core.MissionCompleted, m.Status)
}

func TestControllerStopIsCooperative(t *testing.T) {
	pl := &fakePlanner{stopNow: false}
	ctrl, _, missionID := newTestController(t, pl)

	run, err := ctrl.Start(context.Background(), missionID, planner.Goal{X: 20, Y: 20}, "deliver pallet")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, ctrl.Stop(run.ID))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := ctrl.GetRun(run.ID)
		if got != nil && got.Status.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := ctrl.GetRun(run.ID)
	require.NotNil(t, got)
	assert.Equal(t, core.RunStopped, got.Status)
}

func TestClampToZoneLimitReducesOverLimitSpeed(t *testing.T) {
	cfg := core.DefaultConfig().Policy
	proposal := &core.ActionProposal{Intent: core.IntentMoveTo, Params: map[string]interface{}{"max_speed": 0.9}}
	clampToZoneLimit(proposal, cfg, "loading_bay")
	assert.Equal(t, 0.4, proposal.Params["max_speed"])
}

func TestClampToZoneLimitLeavesNonMoveIntentAlone(t *testing.T) {
	cfg := core.DefaultConfig().Policy
	proposal := &core.ActionProposal{Intent: core.IntentStop, Params: map[string]interface{}{}}
	clampToZoneLimit(proposal, cfg, "loading_bay")
	assert.Empty(t, proposal.Params)
}
