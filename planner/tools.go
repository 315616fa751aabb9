package planner

import (
	"fmt"

	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/policy"
)

// toolDefinition describes one callable tool for the ReAct prompt,
// grounded on original_source's TOOL_DEFINITIONS.
type toolDefinition struct {
	Name        string
	Description string
	Parameters  string
}

var toolDefinitions = []toolDefinition{
	{
		Name:        "get_world_state",
		Description: "Get current environment state: robot position, human positions, obstacle positions, zone info, geofence boundaries.",
		Parameters:  "{}",
	},
	{
		Name:        "check_policy",
		Description: "Pre-check whether a proposed action would pass governance policies. Returns the predicted decision (APPROVED/DENIED/NEEDS_REVIEW) and any policy hits.",
		Parameters:  `{"intent":"MOVE_TO|STOP|WAIT","x":"float","y":"float","max_speed":"float (0.1-1.0)"}`,
	},
	{
		Name:        "submit_action",
		Description: "Submit your final action proposal. Call this ONLY after check_policy returns APPROVED.",
		Parameters:  `{"intent":"MOVE_TO|STOP|WAIT","x":"float (if MOVE_TO)","y":"float (if MOVE_TO)","max_speed":"float (if MOVE_TO, 0.1-1.0)","rationale":"string"}`,
	},
}

// toolExecutor runs agent tool calls against a frozen telemetry/world
// snapshot, grounded on original_source's ToolExecutor.
type toolExecutor struct {
	policyCfg core.PolicyConfig
	telemetry core.TelemetrySample
	world     *WorldState
}

func newToolExecutor(policyCfg core.PolicyConfig, telemetry core.TelemetrySample, world *WorldState) *toolExecutor {
	return &toolExecutor{policyCfg: policyCfg, telemetry: telemetry, world: world}
}

// execute dispatches a tool call by name, returning an observation string
// for the ReAct loop. Unknown tools and tool-internal panics are reported
// as observations rather than propagated, matching original_source's
// try/except-wrapped execute().
func (e *toolExecutor) execute(name string, params map[string]interface{}) (observation string) {
	defer func() {
		if r := recover(); r != nil {
			observation = fmt.Sprintf("Tool error: %v", r)
		}
	}()
	switch name {
	case "get_world_state":
		return e.toolGetWorldState()
	case "check_policy":
		return e.toolCheckPolicy(params)
	default:
		return fmt.Sprintf("Unknown tool: %s", name)
	}
}

func (e *toolExecutor) toolGetWorldState() string {
	t := e.telemetry
	out := fmt.Sprintf("Robot position: (%v, %v)\nRobot speed: %v m/s\nZone: %s\nNearest obstacle: %vm\nHuman detected: %v\nHuman distance: %vm\nHuman confidence: %v",
		fieldOr(t, "x"), fieldOr(t, "y"), fieldOr(t, "speed"), telemetryString(t, "zone"),
		fieldOr(t, "nearest_obstacle_m"), telemetryBool(t, "human_detected"), fieldOr(t, "human_distance_m"), fieldOr(t, "human_conf"))

	if e.world != nil {
		g := e.world.Geofence
		out += fmt.Sprintf("\nGeofence: x[%.0f-%.0f], y[%.0f-%.0f]", g.MinX, g.MaxX, g.MinY, g.MaxY)
		if len(e.world.Zones) > 0 {
			zones := ""
			for i, z := range e.world.Zones {
				if i > 0 {
					zones += ", "
				}
				zones += fmt.Sprintf("%s(y:%.0f-%.0f)", z.Name, z.Rect.MinY, z.Rect.MaxY)
			}
			out += "\nZones: " + zones
		}
		if len(e.world.Obstacles) > 0 {
			obs := ""
			for i, o := range e.world.Obstacles {
				if i > 0 {
					obs += ", "
				}
				obs += fmt.Sprintf("(%.1f,%.1f)", o.X, o.Y)
			}
			out += "\nObstacles at: " + obs
		}
		if e.world.Human != nil {
			out += fmt.Sprintf("\nHuman at: (%.1f, %.1f)", e.world.Human.X, e.world.Human.Y)
		}
	}
	return out
}

func (e *toolExecutor) toolCheckPolicy(params map[string]interface{}) string {
	intent := core.ActionIntent(stringParam(params, "intent", "MOVE_TO"))
	proposal := &core.ActionProposal{
		Intent: intent,
		Params: map[string]interface{}{
			"x":         floatParam(params, "x", 0),
			"y":         floatParam(params, "y", 0),
			"max_speed": floatParam(params, "max_speed", 0.5),
		},
		Rationale: "Policy pre-check",
	}
	decision := policy.Evaluate(e.policyCfg, telemetryToPolicy(e.telemetry), proposal)
	hits := "none"
	if len(decision.PolicyHits) > 0 {
		hits = joinStrings(decision.PolicyHits, ", ")
	}
	reasons := "none"
	if len(decision.Reasons) > 0 {
		reasons = joinStrings(decision.Reasons, "; ")
	}
	return fmt.Sprintf("Decision: %s. Policy hits: %s. Risk score: %.2f. Policy state: %s. Reasons: %s.",
		decision.Decision, hits, decision.RiskScore, decision.PolicyState, reasons)
}

func telemetryToPolicy(t core.TelemetrySample) policy.Telemetry {
	x, _ := telemetryField(t, "x")
	y, _ := telemetryField(t, "y")
	obstacle, _ := telemetryField(t, "nearest_obstacle_m")
	humanConf, _ := telemetryField(t, "human_conf")
	humanDist, ok := telemetryField(t, "human_distance_m")
	if !ok {
		humanDist = 999
	}
	return policy.Telemetry{
		X:                x,
		Y:                y,
		Zone:             telemetryString(t, "zone"),
		NearestObstacleM: obstacle,
		HumanDetected:    telemetryBool(t, "human_detected"),
		HumanConf:        humanConf,
		HumanDistanceM:   humanDist,
	}
}

func fieldOr(t core.TelemetrySample, key string) interface{} {
	if v, ok := t.Payload[key]; ok {
		return v
	}
	return "?"
}

func stringParam(params map[string]interface{}, key, def string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func floatParam(params map[string]interface{}, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func joinStrings(items []string, sep string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}
