// Package planner implements the Action Planner (spec.md §4.2): the
// component that turns a telemetry snapshot and a mission goal into an
// ActionProposal. Two implementations are provided — a single-shot
// DirectPlanner and a ReAct-style AgenticPlanner with tool use, memory, and
// replanning — grounded on original_source/backend/app/services/
// gemini_planner.py and agentic_planner.py respectively, wired onto the
// teacher's ai.AIClient / provider-cascade pattern (ai/chain_client.go,
// ai/providers/{openai,anthropic,gemini}) rather than a single hardcoded
// model.
package planner

import (
	"context"

	"github.com/fleetguard/governor/core"
)

// Goal is a target position for the current mission.
type Goal struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorldState is the subset of the simulator's GET /world response the
// planner's prompts and tools consume.
type WorldState struct {
	Geofence  Rect
	Zones     []NamedRect
	Obstacles []Point
	Human     *Point
}

// Rect is an axis-aligned rectangle, e.g. a geofence or zone boundary.
type Rect struct {
	MinX, MaxX, MinY, MaxY float64
}

// NamedRect is a zone: a Rect with a name.
type NamedRect struct {
	Name string
	Rect Rect
}

// Point is a 2D coordinate.
type Point struct {
	X, Y float64
}

// Planner proposes the next action given the current telemetry and goal.
// lastGovernance, if non-nil, is the GovernanceDecision for the run's
// previous proposal — used as replanning feedback when it was not
// APPROVED. world may be nil if the simulator's world description hasn't
// been fetched yet.
type Planner interface {
	Propose(ctx context.Context, telemetry core.TelemetrySample, goal Goal, instruction string, lastGovernance *core.GovernanceDecision, world *WorldState) (*core.ActionProposal, []core.ThoughtStep, string, error)

	// RecordOutcome lets the planner learn from what happened to its last
	// proposal, feeding the AgentMemory sliding window (no-op for planners
	// without memory).
	RecordOutcome(proposal *core.ActionProposal, governance core.GovernanceDecision, wasExecuted bool)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func telemetryField(t core.TelemetrySample, key string) (float64, bool) {
	v, ok := t.Payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func telemetryString(t core.TelemetrySample, key string) string {
	if v, ok := t.Payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func telemetryBool(t core.TelemetrySample, key string) bool {
	if v, ok := t.Payload[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
