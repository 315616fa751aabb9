package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetguard/governor/core"
)

func defaultPolicyConfig() core.PolicyConfig {
	return core.DefaultConfig().Policy
}

func moveTo(x, y, speed float64) *core.ActionProposal {
	return &core.ActionProposal{
		Intent: core.IntentMoveTo,
		Params: map[string]interface{}{"x": x, "y": y, "max_speed": speed},
	}
}

func TestEvaluateApprovesCleanProposal(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{X: 5, Y: 5, Zone: "aisle", NearestObstacleM: 2, HumanDistanceM: 999}, moveTo(6, 6, 0.4))
	assert.Equal(t, core.DecisionApproved, d.Decision)
	assert.Empty(t, d.PolicyHits)
	assert.Equal(t, core.StateSafe, d.PolicyState)
}

func TestEvaluateStopAndWaitAlwaysApproved(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{X: -100, Y: -100}, &core.ActionProposal{Intent: core.IntentStop})
	assert.Equal(t, core.DecisionApproved, d.Decision)

	d2 := Evaluate(defaultPolicyConfig(), Telemetry{X: -100, Y: -100}, &core.ActionProposal{Intent: core.IntentWait})
	assert.Equal(t, core.DecisionApproved, d2.Decision)
}

func TestEvaluateGeofenceCurrentPosition(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{X: -5, Y: 5, NearestObstacleM: 2, HumanDistanceM: 999}, moveTo(2, 2, 0.3))
	assert.Equal(t, core.DecisionDenied, d.Decision)
	assert.Contains(t, d.PolicyHits, RuleGeofence)
	assert.Equal(t, core.StateStop, d.PolicyState)
	assert.GreaterOrEqual(t, d.RiskScore, 0.95)
}

func TestEvaluateGeofenceProposedDestinationDedupes(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{X: -5, Y: -5, NearestObstacleM: 2, HumanDistanceM: 999}, moveTo(100, 100, 0.3))
	count := 0
	for _, h := range d.PolicyHits {
		if h == RuleGeofence {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestEvaluateObstacleClearanceTriggersReplan(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{X: 5, Y: 5, NearestObstacleM: 0.2, HumanDistanceM: 999}, moveTo(6, 6, 0.3))
	assert.Contains(t, d.PolicyHits, RuleObstacleClearance)
	assert.Equal(t, core.StateReplan, d.PolicyState)
}

func TestEvaluateHumanStopRadius(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{X: 5, Y: 5, NearestObstacleM: 5, HumanDetected: true, HumanConf: 0.9, HumanDistanceM: 0.5}, moveTo(6, 6, 0.3))
	assert.Contains(t, d.PolicyHits, RuleHumanProximity)
	assert.Equal(t, core.StateStop, d.PolicyState)
	// Risk 0.95 >= 0.75 with no GEOFENCE_01 hit reduces to NEEDS_REVIEW.
	assert.Equal(t, core.DecisionNeedsReview, d.Decision)
}

func TestEvaluateWorkerNearerThanHumanUsesWorkerRule(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{
		X: 5, Y: 5, NearestObstacleM: 5, HumanDistanceM: 10,
		WalkingHumans: []WalkingHuman{{X: 5.5, Y: 5, Conf: 0.9}},
	}, moveTo(6, 6, 0.3))
	assert.Contains(t, d.PolicyHits, RuleWorkerProximity)
	assert.NotContains(t, d.PolicyHits, RuleHumanProximity)
}

func TestEvaluateUncertaintyLowConfidence(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{X: 5, Y: 5, NearestObstacleM: 5, HumanDetected: true, HumanConf: 0.3, HumanDistanceM: 999}, moveTo(6, 6, 0.3))
	assert.Contains(t, d.PolicyHits, RuleUncertainty)
	assert.Equal(t, core.StateSlow, d.PolicyState)
}

func TestEvaluateSafeSpeedZoneLimit(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{X: 5, Y: 5, Zone: "loading_bay", NearestObstacleM: 5, HumanDistanceM: 999}, moveTo(6, 6, 0.9))
	assert.Contains(t, d.PolicyHits, RuleSafeSpeed)
}

func TestEvaluateHITLDoesNotFireWithoutRaisedRisk(t *testing.T) {
	// Even with a near-zero review threshold, HITL_05 stays silent in a
	// clean scenario: no rule fires, so risk stays 0, below 0.01.
	cfg := defaultPolicyConfig()
	cfg.ReviewRiskThreshold = 0.01
	d := Evaluate(cfg, Telemetry{X: 5, Y: 5, NearestObstacleM: 5, HumanDistanceM: 999}, moveTo(6, 6, 0.3))
	assert.Equal(t, core.DecisionApproved, d.Decision)
}

func TestEvaluateNeedsReviewWhenRiskHighWithoutGeofence(t *testing.T) {
	d := Evaluate(defaultPolicyConfig(), Telemetry{X: 5, Y: 5, NearestObstacleM: 5, HumanDetected: true, HumanConf: 0.9, HumanDistanceM: 2.5}, moveTo(6, 6, 0.9))
	// SAFE_SPEED_01 (0.85) + HUMAN_CLEARANCE_02 (0.88) -> risk 0.88 >= 0.75, no geofence hit.
	assert.Equal(t, core.DecisionNeedsReview, d.Decision)
}

func TestMoreRestrictiveOrdering(t *testing.T) {
	assert.True(t, core.MoreRestrictive(core.StateSafe, core.StateSlow))
	assert.True(t, core.MoreRestrictive(core.StateSlow, core.StateReplan))
	assert.True(t, core.MoreRestrictive(core.StateReplan, core.StateStop))
	assert.False(t, core.MoreRestrictive(core.StateStop, core.StateSlow))
}
