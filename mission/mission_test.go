package mission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetguard/governor/core"
)

func TestCreateStartsInDraftWithAudit(t *testing.T) {
	s := New(nil, nil)
	m := s.Create("Deliver pallet", map[string]interface{}{"x": 10.0, "y": 5.0})

	assert.Equal(t, core.MissionDraft, m.Status)
	trail := s.AuditTrail(m.ID, 10, 0)
	require.Len(t, trail, 1)
	assert.Contains(t, trail[0].Details, "CREATED")
}

func TestUpdateGoalAllowedOnlyInDraftOrPaused(t *testing.T) {
	s := New(nil, nil)
	m := s.Create("Mission", map[string]interface{}{"x": 1.0, "y": 1.0})

	_, err := s.UpdateGoal(m.ID, map[string]interface{}{"x": 2.0, "y": 2.0})
	require.NoError(t, err)

	_, err = s.Start(m.ID)
	require.NoError(t, err)

	_, err = s.UpdateGoal(m.ID, map[string]interface{}{"x": 3.0, "y": 3.0})
	assert.True(t, errors.Is(err, core.ErrPreconditionFailed))
}

func TestEveryMutationAppendsAudit(t *testing.T) {
	s := New(nil, nil)
	m := s.Create("Mission", map[string]interface{}{"x": 1.0, "y": 1.0})
	_, _ = s.Start(m.ID)
	_, _ = s.Pause(m.ID)
	_, _ = s.Resume(m.ID)
	_, _ = s.Complete(m.ID)

	trail := s.AuditTrail(m.ID, 100, 0)
	assert.Len(t, trail, 5) // CREATED + 4 status changes
}

func TestSoftDeleteExcludedFromListByDefault(t *testing.T) {
	s := New(nil, nil)
	m := s.Create("Mission", map[string]interface{}{"x": 1.0, "y": 1.0})
	_, err := s.SoftDelete(m.ID)
	require.NoError(t, err)

	assert.Empty(t, s.List(false, 10, 0))
	assert.Len(t, s.List(true, 10, 0), 1)
}

func TestReplayOnlyFromTerminalOrPausedStates(t *testing.T) {
	s := New(nil, nil)
	m := s.Create("Mission", map[string]interface{}{"x": 1.0, "y": 1.0})

	_, err := s.Replay(m.ID)
	assert.True(t, errors.Is(err, core.ErrPreconditionFailed))

	_, _ = s.Start(m.ID)
	_, _ = s.Complete(m.ID)

	replayed, err := s.Replay(m.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MissionDraft, replayed.Status)
}

func TestGetNotFound(t *testing.T) {
	s := New(nil, nil)
	assert.Nil(t, s.Get("missing"))
}
