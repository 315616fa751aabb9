package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/fleetguard/governor/core"
)

// jsonBlockRE extracts the first JSON object or array from free-form LLM
// output, matching original_source's _JSON_RE/_extract_json helper.
var jsonBlockRE = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)

func extractJSON(text string, out interface{}) error {
	m := jsonBlockRE.FindString(text)
	if m == "" {
		return fmt.Errorf("no JSON found in model output")
	}
	return json.Unmarshal([]byte(m), out)
}

// DirectPlanner is the single-shot planner: one LLM call constrained to
// return exactly one ActionProposal, grounded on original_source's
// GeminiPlanner.propose(). It never calls tools and carries no memory
// across proposals — RecordOutcome is a no-op.
type DirectPlanner struct {
	cascade *Cascade
	logger  core.Logger
}

// NewDirectPlanner builds a DirectPlanner over the given reasoning cascade.
func NewDirectPlanner(cascade *Cascade, logger core.Logger) *DirectPlanner {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &DirectPlanner{cascade: cascade, logger: logger}
}

type directProposalJSON struct {
	Intent    string                 `json:"intent"`
	Params    map[string]interface{} `json:"params"`
	Rationale string                 `json:"rationale"`
}

// Propose issues one LLM call (if the cascade is available) or falls back
// to a deterministic heuristic, always returning a safety-clamped
// proposal.
func (p *DirectPlanner) Propose(ctx context.Context, telemetry core.TelemetrySample, goal Goal, instruction string, lastGovernance *core.GovernanceDecision, world *WorldState) (*core.ActionProposal, []core.ThoughtStep, string, error) {
	if p.cascade == nil || !p.cascade.Available() {
		return deterministicFallback(telemetry, goal, 0), nil, "deterministic", nil
	}

	payload, err := json.Marshal(telemetry.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	system := "You are the high-level reasoning layer for a simulated mobile robot. Propose exactly ONE next action."
	prompt := fmt.Sprintf(`TASK:
%s

WORLD STATE (telemetry JSON):
%s

GOAL:
{"x":%v,"y":%v}

INSTRUCTIONS:
- Propose exactly ONE next action.
- Allowed intents: MOVE_TO, STOP, WAIT.
- For MOVE_TO, output params: {"x": <float>, "y": <float>, "max_speed": <float 0.1..1.0>}
- If human_detected=true or nearest_obstacle_m is low, reduce max_speed.
- Output STRICT JSON (no markdown) in this schema:

{"intent":"MOVE_TO|STOP|WAIT","params":{...},"rationale":"..."}
`, instruction, string(payload), goal.X, goal.Y)

	text, model, err := p.cascade.Complete(ctx, system, prompt)
	if err != nil {
		p.logger.Warn("direct planner reasoning unavailable, using deterministic fallback", map[string]interface{}{"error": err.Error()})
		return deterministicFallback(telemetry, goal, 0), nil, "deterministic", nil
	}

	var obj directProposalJSON
	if err := extractJSON(text, &obj); err != nil {
		p.logger.Warn("direct planner failed to parse model output, using deterministic fallback", map[string]interface{}{"error": err.Error()})
		return deterministicFallback(telemetry, goal, 0), nil, "deterministic", nil
	}

	proposal := &core.ActionProposal{
		Intent:    core.ActionIntent(obj.Intent),
		Params:    obj.Params,
		Rationale: fmt.Sprintf("[%s/direct] %s", model, obj.Rationale),
	}
	clampMoveTo(proposal, goal)
	return proposal, nil, model, nil
}

// RecordOutcome is a no-op: the direct planner carries no memory.
func (p *DirectPlanner) RecordOutcome(proposal *core.ActionProposal, governance core.GovernanceDecision, wasExecuted bool) {
}

func clampMoveTo(proposal *core.ActionProposal, goal Goal) {
	if proposal.Intent != core.IntentMoveTo {
		return
	}
	if proposal.Params == nil {
		proposal.Params = map[string]interface{}{}
	}
	x, ok := proposal.Params["x"].(float64)
	if !ok {
		x = goal.X
	}
	y, ok := proposal.Params["y"].(float64)
	if !ok {
		y = goal.Y
	}
	speed, ok := proposal.Params["max_speed"].(float64)
	if !ok {
		speed = 0.5
	}
	proposal.Params["x"] = x
	proposal.Params["y"] = y
	proposal.Params["max_speed"] = clamp(speed, 0.1, 1.0)
}

var zoneSpeedDefaults = map[string]float64{"aisle": 0.5, "loading_bay": 0.4, "corridor": 0.7}

// deterministicFallback mirrors AgenticPlanner._deterministic_fallback:
// stop if the goal is reached or a human is within stop range, otherwise
// move toward the goal at a speed reduced by proximity and recent
// denials.
func deterministicFallback(telemetry core.TelemetrySample, goal Goal, recentDenials int) *core.ActionProposal {
	x, _ := telemetryField(telemetry, "x")
	y, _ := telemetryField(telemetry, "y")

	if absf(x-goal.X) < 0.5 && absf(y-goal.Y) < 0.5 {
		return &core.ActionProposal{Intent: core.IntentStop, Params: map[string]interface{}{}, Rationale: "[fallback] Reached goal."}
	}

	humanDist, ok := telemetryField(telemetry, "human_distance_m")
	if !ok {
		humanDist = 999
	}
	if humanDist < 1.0 {
		return &core.ActionProposal{Intent: core.IntentStop, Params: map[string]interface{}{}, Rationale: "[fallback] Human too close, stopping."}
	}
	speed := 0.5
	if humanDist < 3.0 {
		speed = 0.3
	}
	if recentDenials >= 2 {
		speed = minf(speed, 0.3)
	}
	zone := telemetryString(telemetry, "zone")
	if limit, ok := zoneSpeedDefaults[zone]; ok {
		speed = minf(speed, limit)
	} else {
		speed = minf(speed, 0.5)
	}

	return &core.ActionProposal{
		Intent: core.IntentMoveTo,
		Params: map[string]interface{}{"x": goal.X, "y": goal.Y, "max_speed": speed},
		Rationale: fmt.Sprintf("[fallback] Safe navigation at %.1f m/s (zone: %s).", speed, zone),
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
