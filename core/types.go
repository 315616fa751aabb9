package core

import "time"

// MissionStatus is the lifecycle state of a Mission.
type MissionStatus string

const (
	MissionDraft     MissionStatus = "draft"
	MissionExecuting MissionStatus = "executing"
	MissionPaused    MissionStatus = "paused"
	MissionCompleted MissionStatus = "completed"
	MissionFailed    MissionStatus = "failed"
	MissionDeleted   MissionStatus = "deleted"
)

// RunStatus is the lifecycle state of a Run, per spec.md §4.7's state
// machine. running is the only non-terminal state.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunStopped   RunStatus = "stopped"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsTerminal reports whether status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunStopped || s == RunCompleted || s == RunFailed
}

// EventType discriminates an Event's payload shape in the hash-chained log.
type EventType string

const (
	EventPlan      EventType = "PLAN"
	EventTelemetry EventType = "TELEMETRY"
	EventDecision  EventType = "DECISION"
	EventExecution EventType = "EXECUTION"
	EventAlert     EventType = "ALERT"
)

// ZeroHash is the prev_hash of the first Event in any run's chain: 64
// lowercase hex zero characters.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Mission is a declarative goal the runtime works toward across one or more
// Runs. Goal is editable only while Status is draft or paused.
type Mission struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Goal      map[string]interface{} `json:"goal"` // canonical form: {"x": float64, "y": float64}
	Status    MissionStatus          `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// CanEditGoal reports whether the mission's goal may currently be mutated.
func (m *Mission) CanEditGoal() bool {
	return m.Status == MissionDraft || m.Status == MissionPaused
}

// MissionAudit records one state-changing operation on a Mission. This is a
// separate, non-hash-linked append log from the Run event chain (spec.md
// §4.9) used for control-plane compliance auditability.
type MissionAudit struct {
	ID        string                 `json:"id"`
	MissionID string                 `json:"mission_id"`
	OldValues map[string]interface{} `json:"old_values"`
	NewValues map[string]interface{} `json:"new_values"`
	Actor     string                 `json:"actor"`
	Details   string                 `json:"details"`
	Timestamp time.Time              `json:"ts"`
}

// Run is one execution of a Mission. It exclusively owns its Events,
// TelemetrySamples, in-memory plan queue, and agent memory.
type Run struct {
	ID        string     `json:"id"`
	MissionID string     `json:"mission_id"`
	Status    RunStatus  `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Event is one link in a Run's tamper-evident hash chain.
type Event struct {
	ID        string                 `json:"id"`
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"ts"`
	Type      EventType              `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	PrevHash  string                 `json:"prev_hash"`
	Hash      string                 `json:"hash"`
}

// TelemetrySample is one unchained telemetry reading for a Run.
type TelemetrySample struct {
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"ts"`
	Payload   map[string]interface{} `json:"payload"`
}

// ActionIntent is the kind of action a planner proposes.
type ActionIntent string

const (
	IntentMoveTo ActionIntent = "MOVE_TO"
	IntentStop   ActionIntent = "STOP"
	IntentWait   ActionIntent = "WAIT"
)

// ActionProposal is a candidate action awaiting governance.
type ActionProposal struct {
	Intent    ActionIntent           `json:"intent"`
	Params    map[string]interface{} `json:"params"` // MOVE_TO: {x, y, max_speed}
	Rationale string                 `json:"rationale"`
}

// MoveToParams extracts the x/y/max_speed parameters of a MOVE_TO
// proposal. Values are returned as given, without clamping; a missing or
// non-numeric max_speed defaults to 0.5. ok is false if x or y is missing
// or not numeric.
func (p *ActionProposal) MoveToParams() (x, y, maxSpeed float64, ok bool) {
	if p.Intent != IntentMoveTo || p.Params == nil {
		return 0, 0, 0, false
	}
	xv, xok := toFloat(p.Params["x"])
	yv, yok := toFloat(p.Params["y"])
	sv, sok := toFloat(p.Params["max_speed"])
	if !xok || !yok {
		return 0, 0, 0, false
	}
	if !sok {
		sv = 0.5
	}
	return xv, yv, sv, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Decision is the Policy Evaluator's verdict on a proposal.
type Decision string

const (
	DecisionApproved    Decision = "APPROVED"
	DecisionDenied      Decision = "DENIED"
	DecisionNeedsReview Decision = "NEEDS_REVIEW"
)

// PolicyState is the most restrictive posture implied by the rules that
// fired, ordered STOP > REPLAN > SLOW > SAFE (spec.md §4.3).
type PolicyState string

const (
	StateSafe   PolicyState = "SAFE"
	StateSlow   PolicyState = "SLOW"
	StateStop   PolicyState = "STOP"
	StateReplan PolicyState = "REPLAN"
)

// stateRank orders PolicyState by restrictiveness; higher wins.
var stateRank = map[PolicyState]int{
	StateSafe:   0,
	StateSlow:   1,
	StateReplan: 2,
	StateStop:   3,
}

// MoreRestrictive reports whether candidate outranks current.
func MoreRestrictive(current, candidate PolicyState) bool {
	return stateRank[candidate] > stateRank[current]
}

// GovernanceDecision is the Policy Evaluator's full verdict.
type GovernanceDecision struct {
	Decision       Decision               `json:"decision"`
	PolicyHits     []string               `json:"policy_hits"`
	Reasons        []string               `json:"reasons"`
	RequiredAction string                 `json:"required_action,omitempty"`
	RiskScore      float64                `json:"risk_score"`
	PolicyState    PolicyState            `json:"policy_state"`
	Extra          map[string]interface{} `json:"-"`
}

// AgentMemoryEntry is one outcome recorded in a planner's sliding-window
// memory, used to bias and throttle future prompts.
type AgentMemoryEntry struct {
	Timestamp   time.Time    `json:"ts"`
	Intent      ActionIntent `json:"intent"`
	Params      map[string]interface{} `json:"params"`
	Decision    Decision     `json:"decision"`
	PolicyHits  []string     `json:"policy_hits"`
	Reasons     []string     `json:"reasons"`
	PolicyState PolicyState  `json:"policy_state"`
	WasExecuted bool         `json:"was_executed"`
}

// ThoughtStep records one step of agentic reasoning for audit.
type ThoughtStep struct {
	StepNumber  int                    `json:"step_number"`
	Thought     string                 `json:"thought"`
	Action      string                 `json:"action,omitempty"`
	ActionInput map[string]interface{} `json:"action_input,omitempty"`
	Observation string                 `json:"observation,omitempty"`
}

// BroadcastKind discriminates a Broadcaster message's payload shape.
type BroadcastKind string

const (
	BroadcastTelemetry BroadcastKind = "telemetry"
	BroadcastEvent     BroadcastKind = "event"
	BroadcastAlert     BroadcastKind = "alert"
	BroadcastStatus    BroadcastKind = "status"
	BroadcastReasoning BroadcastKind = "agent_reasoning"
)

// BroadcastMessage is delivered to every live subscriber of a run.
type BroadcastMessage struct {
	Kind BroadcastKind          `json:"kind"`
	Data map[string]interface{} `json:"data"`
}
