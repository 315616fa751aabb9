package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetguard/governor/core"
)

func approved() core.GovernanceDecision {
	return core.GovernanceDecision{Decision: core.DecisionApproved, PolicyState: core.StateSafe}
}

func denied(hits ...string) core.GovernanceDecision {
	return core.GovernanceDecision{Decision: core.DecisionDenied, PolicyHits: hits, Reasons: []string{"reason"}, PolicyState: core.StateStop}
}

func TestAgentMemoryTrimsToMaxEntries(t *testing.T) {
	m := NewAgentMemory()
	for i := 0; i < maxMemoryEntries+5; i++ {
		m.Add(&core.ActionProposal{Intent: core.IntentStop}, approved(), true)
	}
	assert.Equal(t, maxMemoryEntries, m.Len())
}

func TestAgentMemoryToContextEmpty(t *testing.T) {
	m := NewAgentMemory()
	assert.Equal(t, "No previous decisions.", m.ToContext())
}

func TestAgentMemoryToContextShowsLastEight(t *testing.T) {
	m := NewAgentMemory()
	for i := 0; i < 12; i++ {
		m.Add(&core.ActionProposal{Intent: core.IntentMoveTo, Params: map[string]interface{}{"x": float64(i)}}, approved(), true)
	}
	ctx := m.ToContext()
	assert.Contains(t, ctx, "Recent decision history:")
	assert.Contains(t, ctx, "map[x:4]")
	assert.Contains(t, ctx, "map[x:11]")
	assert.NotContains(t, ctx, "map[x:3]")
}

func TestAgentMemoryDenialCount(t *testing.T) {
	m := NewAgentMemory()
	m.Add(&core.ActionProposal{Intent: core.IntentMoveTo}, denied("GEOFENCE_01"), false)
	m.Add(&core.ActionProposal{Intent: core.IntentMoveTo}, approved(), true)
	m.Add(&core.ActionProposal{Intent: core.IntentMoveTo}, denied("OBSTACLE_CLEARANCE_03"), false)
	assert.Equal(t, 2, m.DenialCount(5))
}

func TestAgentMemoryLastDenialReasons(t *testing.T) {
	m := NewAgentMemory()
	m.Add(&core.ActionProposal{Intent: core.IntentMoveTo}, denied("GEOFENCE_01"), false)
	m.Add(&core.ActionProposal{Intent: core.IntentMoveTo}, approved(), true)
	assert.Equal(t, []string{"reason"}, m.LastDenialReasons())
}

func TestAgentMemorySummary(t *testing.T) {
	m := NewAgentMemory()
	m.Add(&core.ActionProposal{Intent: core.IntentMoveTo}, denied("GEOFENCE_01"), false)
	s := m.GetMemorySummary()
	assert.Equal(t, 1, s.TotalEntries)
	assert.Equal(t, 1, s.RecentDenials)
	assert.Len(t, s.Entries, 1)
}
