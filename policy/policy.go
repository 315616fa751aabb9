// Package policy implements the Policy Evaluator: a pure, total function
// from (telemetry snapshot, proposal) to a GovernanceDecision (spec.md
// §4.3), ported from the original Python rule set at
// original_source/backend/app/policies/rules_python.py.
package policy

import (
	"fmt"
	"math"

	"github.com/fleetguard/governor/core"
)

// Rule identifiers, matching the original system's policy_hits values.
const (
	RuleGeofence           = "GEOFENCE_01"
	RuleObstacleClearance  = "OBSTACLE_CLEARANCE_03"
	RuleHumanProximity     = "HUMAN_PROXIMITY_02"
	RuleWorkerProximity    = "WORKER_PROXIMITY_06"
	RuleUncertainty        = "UNCERTAINTY_04"
	RuleSafeSpeed          = "SAFE_SPEED_01"
	RuleHumanClearance     = "HUMAN_CLEARANCE_02"
	RuleHITL               = "HITL_05"
)

// Telemetry is the subset of a world/telemetry snapshot the evaluator
// reads. Fields beyond these are ignored.
type Telemetry struct {
	X                float64
	Y                float64
	Zone             string
	NearestObstacleM float64
	HumanDetected    bool
	HumanConf        float64
	HumanDistanceM   float64
	WalkingHumans    []WalkingHuman
}

// WalkingHuman is one worker/human candidate reported by the simulator.
type WalkingHuman struct {
	X    float64
	Y    float64
	Conf float64
}

// Evaluate is the Policy Evaluator: pure and total. Given the same
// telemetry, proposal, and config it always returns the same decision.
func Evaluate(cfg core.PolicyConfig, t Telemetry, proposal *core.ActionProposal) core.GovernanceDecision {
	// spec.md §4.3: STOP and WAIT intents are always APPROVED — they carry
	// no motion, so none of the movement-triggered rules below apply.
	if proposal.Intent != core.IntentMoveTo {
		return core.GovernanceDecision{
			Decision:    core.DecisionApproved,
			PolicyHits:  []string{},
			Reasons:     []string{},
			RiskScore:   0,
			PolicyState: core.StateSafe,
		}
	}

	var hits []string
	var reasons []string
	requiredAction := ""
	state := core.StateSafe
	risk := 0.0

	hasHit := func(id string) bool {
		for _, h := range hits {
			if h == id {
				return true
			}
		}
		return false
	}
	raise := func(to core.PolicyState) {
		if core.MoreRestrictive(state, to) {
			state = to
		}
	}

	destX, destY, maxSpeed, ok := proposal.MoveToParams()
	if !ok {
		destX, destY, maxSpeed = t.X, t.Y, 0
	}

	// GEOFENCE_01 — current position
	if !inBounds(cfg, t.X, t.Y) {
		hits = append(hits, RuleGeofence)
		reasons = append(reasons, fmt.Sprintf("Robot out of geofence at (%.2f,%.2f).", t.X, t.Y))
		risk = math.Max(risk, 0.95)
		raise(core.StateStop)
	}
	// GEOFENCE_01 — proposed destination
	if !inBounds(cfg, destX, destY) {
		if !hasHit(RuleGeofence) {
			hits = append(hits, RuleGeofence)
		}
		reasons = append(reasons, fmt.Sprintf("Proposed destination (%.2f,%.2f) is outside geofence.", destX, destY))
		risk = math.Max(risk, 0.95)
		raise(core.StateStop)
	}

	// OBSTACLE_CLEARANCE_03
	if t.NearestObstacleM < cfg.MinObstacleClearanceM {
		hits = append(hits, RuleObstacleClearance)
		reasons = append(reasons, fmt.Sprintf("Obstacle clearance too low: %.2fm < %.2fm.", t.NearestObstacleM, cfg.MinObstacleClearanceM))
		requiredAction = "Stop and replan with safer clearance."
		risk = math.Max(risk, 0.9)
		raise(core.StateReplan)
	}

	// HUMAN / WORKER PROXIMITY — nearer of primary human or nearest worker.
	nearestWorkerDist, nearestWorkerConf := nearestWorker(t.WalkingHumans, t.X, t.Y)
	useWorker := nearestWorkerDist < t.HumanDistanceM
	proxDist, proxLabel := t.HumanDistanceM, "Human"
	if useWorker {
		proxDist, proxLabel = nearestWorkerDist, "Worker"
	}
	proxRule := RuleHumanProximity
	if useWorker {
		proxRule = RuleWorkerProximity
	}

	switch {
	case proxDist < cfg.HumanStopRadiusM:
		hits = append(hits, proxRule)
		reasons = append(reasons, fmt.Sprintf("%s too close: %.2fm < stop radius %.1fm. Full stop required.", proxLabel, proxDist, cfg.HumanStopRadiusM))
		requiredAction = "Full stop — human within safety perimeter."
		risk = math.Max(risk, 0.95)
		raise(core.StateStop)
	case proxDist < cfg.HumanSlowRadiusM:
		hits = append(hits, proxRule)
		reasons = append(reasons, fmt.Sprintf("%s nearby: %.2fm < slow radius %.1fm. Reduce speed.", proxLabel, proxDist, cfg.HumanSlowRadiusM))
		requiredAction = fmt.Sprintf("Reduce speed to <= %.2f while %s is within %.1fm.", cfg.MaxSpeedNearHuman, proxLabel, cfg.HumanSlowRadiusM)
		risk = math.Max(risk, 0.80)
		raise(core.StateSlow)
	}
	_ = nearestWorkerConf

	// UNCERTAINTY_04
	if t.HumanDetected && t.HumanConf < cfg.MinHumanConfidence {
		hits = append(hits, RuleUncertainty)
		reasons = append(reasons, fmt.Sprintf("Human detected but confidence too low: %.2f < %.2f.", t.HumanConf, cfg.MinHumanConfidence))
		requiredAction = "Slow down and request operator review; improve perception confidence."
		risk = math.Max(risk, 0.8)
		raise(core.StateSlow)
	}

	// SAFE_SPEED_01
	limit, zoneKnown := cfg.ZoneSpeedLimits[t.Zone]
	if !zoneKnown {
		limit = 0.5
	}
	if maxSpeed > limit {
		hits = append(hits, RuleSafeSpeed)
		reasons = append(reasons, fmt.Sprintf("Speed too high for zone '%s': %.2f > %.2f.", t.Zone, maxSpeed, limit))
		requiredAction = fmt.Sprintf("Reduce max_speed to <= %.2f.", limit)
		risk = math.Max(risk, 0.85)
		raise(core.StateSlow)
	}

	// HUMAN_CLEARANCE_02 — legacy confidence-based check.
	if t.HumanDetected && t.HumanConf >= cfg.MinHumanConfidence && maxSpeed > cfg.MaxSpeedNearHuman {
		if !hasHit(RuleHumanProximity) {
			hits = append(hits, RuleHumanClearance)
		}
		reasons = append(reasons, fmt.Sprintf("Human nearby (conf=%.2f); max_speed %.2f too high.", t.HumanConf, maxSpeed))
		requiredAction = fmt.Sprintf("Reduce max_speed to <= %.2f near humans.", cfg.MaxSpeedNearHuman)
		risk = math.Max(risk, 0.88)
		raise(core.StateSlow)
	}

	// HITL_05 — synthetic hit when risk alone crosses the review
	// threshold without any other rule having fired.
	if risk >= cfg.ReviewRiskThreshold && len(hits) == 0 {
		hits = append(hits, RuleHITL)
		reasons = append(reasons, fmt.Sprintf("Risk score %.2f exceeds review threshold %.2f; human review required.", risk, cfg.ReviewRiskThreshold))
	}

	if len(hits) == 0 {
		return core.GovernanceDecision{
			Decision:    core.DecisionApproved,
			PolicyHits:  []string{},
			Reasons:     []string{},
			RiskScore:   risk,
			PolicyState: core.StateSafe,
		}
	}

	decision := core.DecisionDenied
	if risk >= cfg.ReviewRiskThreshold && !hasHit(RuleGeofence) {
		decision = core.DecisionNeedsReview
	}

	return core.GovernanceDecision{
		Decision:       decision,
		PolicyHits:     hits,
		Reasons:        reasons,
		RequiredAction: requiredAction,
		RiskScore:      risk,
		PolicyState:    state,
	}
}

func inBounds(cfg core.PolicyConfig, x, y float64) bool {
	return x >= cfg.GeofenceMinX && x <= cfg.GeofenceMaxX && y >= cfg.GeofenceMinY && y <= cfg.GeofenceMaxY
}

func nearestWorker(workers []WalkingHuman, x, y float64) (dist, conf float64) {
	dist = 999.0
	for _, w := range workers {
		d := math.Hypot(w.X-x, w.Y-y)
		if d < dist {
			dist = d
			conf = w.Conf
		}
	}
	return dist, conf
}
