package planner

import (
	"context"
	"fmt"

	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/policy"
)

// maxReactSteps bounds reasoning steps per attempt, and maxReplans bounds
// how many times the agent retries after a pre-check denial — both
// grounded on original_source's AgenticPlanner.MAX_STEPS/MAX_REPLANS.
const (
	maxReactSteps = 3
	maxReplans    = 2
)

// AgenticPlanner is the ReAct-style planner: it reasons over a fixed
// 3-tool pipeline (get_world_state -> check_policy -> submit_action),
// keeps a sliding-window memory of past decisions, and replans up to
// maxReplans times when a pre-check predicts denial. Grounded on
// original_source/backend/app/services/agentic_planner.py.
type AgenticPlanner struct {
	cascade   *Cascade
	policyCfg core.PolicyConfig
	memory    *AgentMemory
	logger    core.Logger
}

// NewAgenticPlanner builds an AgenticPlanner with a fresh, empty memory.
func NewAgenticPlanner(cascade *Cascade, policyCfg core.PolicyConfig, logger core.Logger) *AgenticPlanner {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &AgenticPlanner{cascade: cascade, policyCfg: policyCfg, memory: NewAgentMemory(), logger: logger}
}

type reactStep struct {
	Thought     string                 `json:"thought"`
	Action      string                 `json:"action"`
	ActionInput map[string]interface{} `json:"action_input"`
}

// Propose runs the ReAct reasoning loop, replanning on pre-denial, and
// falling back to a deterministic safe proposal if reasoning is
// unavailable, unparsable, or exhausts its replan budget.
func (p *AgenticPlanner) Propose(ctx context.Context, telemetry core.TelemetrySample, goal Goal, instruction string, lastGovernance *core.GovernanceDecision, world *WorldState) (*core.ActionProposal, []core.ThoughtStep, string, error) {
	var denialFeedback string
	if lastGovernance != nil && (lastGovernance.Decision == core.DecisionDenied || lastGovernance.Decision == core.DecisionNeedsReview) {
		denialFeedback = fmt.Sprintf("Decision: %s. Policies: %s. Reasons: %s.",
			lastGovernance.Decision, joinStrings(lastGovernance.PolicyHits, ", "), joinStrings(lastGovernance.Reasons, "; "))
	}
	if p.memory.DenialCount(5) >= 3 {
		denialFeedback += fmt.Sprintf("\nWARNING: %d of last 5 proposals were denied. Significantly change your strategy.", p.memory.DenialCount(5))
	}

	if p.cascade == nil || !p.cascade.Available() {
		return deterministicFallback(telemetry, goal, p.memory.DenialCount(5)), nil, "deterministic", nil
	}

	var allThoughts []core.ThoughtStep
	modelUsed := "unknown"
	var lastProposal *core.ActionProposal

	for attempt := 0; attempt <= maxReplans; attempt++ {
		system := p.buildSystemPrompt(telemetry, goal, instruction, world, denialFeedback)

		text, model, err := p.cascade.Complete(ctx, system, "Begin.")
		if err != nil {
			p.logger.Warn("agentic planner reasoning unavailable, using deterministic fallback", map[string]interface{}{"error": err.Error()})
			return deterministicFallback(telemetry, goal, p.memory.DenialCount(5)), allThoughts, "deterministic", nil
		}
		modelUsed = model

		var steps []reactStep
		if err := extractJSON(text, &steps); err != nil {
			p.logger.Warn("agentic planner failed to parse reasoning steps, using deterministic fallback", map[string]interface{}{"error": err.Error()})
			return deterministicFallback(telemetry, goal, p.memory.DenialCount(5)), allThoughts, modelUsed, nil
		}

		executor := newToolExecutor(p.policyCfg, telemetry, world)
		var proposal *core.ActionProposal

		if len(steps) > maxReactSteps {
			steps = steps[:maxReactSteps]
		}
		for _, raw := range steps {
			step := core.ThoughtStep{
				StepNumber:  len(allThoughts) + 1,
				Thought:     raw.Thought,
				Action:      raw.Action,
				ActionInput: raw.ActionInput,
			}

			if raw.Action == "submit_action" {
				intent := core.ActionIntent(stringParam(raw.ActionInput, "intent", "MOVE_TO"))
				params := map[string]interface{}{}
				if intent == core.IntentMoveTo {
					params = map[string]interface{}{
						"x":         clamp(floatParam(raw.ActionInput, "x", goal.X), p.policyCfg.GeofenceMinX, p.policyCfg.GeofenceMaxX),
						"y":         clamp(floatParam(raw.ActionInput, "y", goal.Y), p.policyCfg.GeofenceMinY, p.policyCfg.GeofenceMaxY),
						"max_speed": clamp(floatParam(raw.ActionInput, "max_speed", 0.5), 0.1, 1.0),
					}
				}
				rationale := stringParam(raw.ActionInput, "rationale", "Agent-generated action")
				proposal = &core.ActionProposal{
					Intent:    intent,
					Params:    params,
					Rationale: fmt.Sprintf("[%s/agentic] %s", modelUsed, rationale),
				}
				step.Observation = fmt.Sprintf("Action submitted: %s %v", intent, params)
				allThoughts = append(allThoughts, step)
				break
			}

			step.Observation = executor.execute(raw.Action, raw.ActionInput)
			allThoughts = append(allThoughts, step)
		}

		if proposal == nil {
			p.logger.Warn("agentic planner did not submit an action, using deterministic fallback", nil)
			proposal = deterministicFallback(telemetry, goal, p.memory.DenialCount(5))
		}
		lastProposal = proposal

		preCheck := policy.Evaluate(p.policyCfg, telemetryToPolicy(telemetry), proposal)
		if preCheck.Decision == core.DecisionApproved {
			return proposal, allThoughts, modelUsed, nil
		}

		if attempt >= maxReplans {
			fallback := &core.ActionProposal{
				Intent:    core.IntentWait,
				Params:    map[string]interface{}{},
				Rationale: fmt.Sprintf("[%s/agentic] Unable to generate safe plan after %d attempts — recommend manual override.", modelUsed, maxReplans+1),
			}
			allThoughts = append(allThoughts, core.ThoughtStep{
				StepNumber: len(allThoughts) + 1,
				Thought:    "Exhausted replanning attempts. Recommending manual override.",
				Action:     "graceful_stop",
				Observation: "Returning WAIT — operator should review and intervene.",
			})
			return fallback, allThoughts, modelUsed, nil
		}

		denialFeedback = fmt.Sprintf("Pre-check DENIED (attempt %d): Policies: %s. Reasons: %s. Risk: %.2f. State: %s.",
			attempt+1, joinStrings(preCheck.PolicyHits, ", "), joinStrings(preCheck.Reasons, "; "), preCheck.RiskScore, preCheck.PolicyState)
		allThoughts = append(allThoughts, core.ThoughtStep{
			StepNumber:  len(allThoughts) + 1,
			Thought:     fmt.Sprintf("My proposal was pre-denied. Replanning with feedback: %s", denialFeedback),
			Action:      "replan",
			Observation: "Starting new reasoning chain...",
		})
	}

	return lastProposal, allThoughts, modelUsed, nil
}

// RecordOutcome feeds the governance decision back into the sliding
// memory window used for future prompts.
func (p *AgenticPlanner) RecordOutcome(proposal *core.ActionProposal, governance core.GovernanceDecision, wasExecuted bool) {
	p.memory.Add(proposal, governance, wasExecuted)
}

// GetMemorySummary exposes memory state for diagnostics/compliance.
func (p *AgenticPlanner) GetMemorySummary() Summary {
	return p.memory.GetMemorySummary()
}

func (p *AgenticPlanner) buildSystemPrompt(telemetry core.TelemetrySample, goal Goal, instruction string, world *WorldState, denialFeedback string) string {
	toolText := ""
	for _, t := range toolDefinitions {
		toolText += fmt.Sprintf("  - %s: %s Params: %s\n", t.Name, t.Description, t.Parameters)
	}
	memoryText := p.memory.ToContext()
	denialText := ""
	if denialFeedback != "" {
		denialText = fmt.Sprintf(`
IMPORTANT — YOUR PREVIOUS PROPOSAL WAS DENIED:
%s
You MUST propose a DIFFERENT action that avoids the denied policies. Do NOT repeat the same proposal.
Consider: different route, lower speed, waiting, or requesting a human override.
`, denialFeedback)
	}

	x, _ := telemetryField(telemetry, "x")
	y, _ := telemetryField(telemetry, "y")
	speed, _ := telemetryField(telemetry, "speed")
	humanDist, _ := telemetryField(telemetry, "human_distance_m")
	obstacle, _ := telemetryField(telemetry, "nearest_obstacle_m")

	return fmt.Sprintf(`You are an autonomous warehouse robot AI planning agent.

TASK: %s
GOAL POSITION: (%v, %v)

CURRENT STATE:
- Position: (%v, %v)
- Speed: %v m/s | Zone: %s
- Human: %v at %vm
- Nearest obstacle: %vm

%s
%s
TOOLS (use in order: get_world_state -> check_policy -> submit_action):
%s

POLICY RULES:
- Geofence: x[%.0f-%.0f], y[%.0f-%.0f] — STOP if outside
- Human <%.0fm: STOP | Human <%.0fm: max %.1f m/s
- Obstacle clearance: min %.1fm

HARD CONSTRAINTS (never violate):
- You CANNOT move the robot directly — you only propose actions
- You CANNOT override or bypass safety policies
- You MUST accept policy rejections and replan with different parameters
- If you cannot find a safe plan after retrying, respond with WAIT and rationale "Unable to generate safe plan — recommend manual override"

Respond with a JSON array of exactly 3 steps:
[
  {"thought": "brief assessment", "action": "get_world_state", "action_input": {}},
  {"thought": "brief policy reasoning", "action": "check_policy", "action_input": {"intent": "MOVE_TO", "x": 15, "y": 10, "max_speed": 0.4}},
  {"thought": "brief conclusion", "action": "submit_action", "action_input": {"intent": "MOVE_TO", "x": 15, "y": 10, "max_speed": 0.4, "rationale": "Concise reason."}}
]

Keep each thought under 30 words. ALWAYS check_policy before submit_action.
`, instruction, goal.X, goal.Y, x, y, speed, telemetryString(telemetry, "zone"), telemetryBool(telemetry, "human_detected"), humanDist, obstacle,
		memoryText, denialText, toolText,
		p.policyCfg.GeofenceMinX, p.policyCfg.GeofenceMaxX, p.policyCfg.GeofenceMinY, p.policyCfg.GeofenceMaxY,
		p.policyCfg.HumanStopRadiusM, p.policyCfg.HumanSlowRadiusM, p.policyCfg.MaxSpeedNearHuman, p.policyCfg.MinObstacleClearanceM)
}
