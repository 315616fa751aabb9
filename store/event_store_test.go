package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetguard/governor/core"
)

func TestInMemoryEventStoreAppendChains(t *testing.T) {
	s := NewInMemoryEventStore()
	ctx := context.Background()
	base := time.Now()

	ev1, err := s.Append(ctx, "run-1", core.EventTelemetry, map[string]interface{}{"x": 1.0}, base)
	require.NoError(t, err)
	assert.Equal(t, core.ZeroHash, ev1.PrevHash)
	assert.Len(t, ev1.Hash, 64)

	ev2, err := s.Append(ctx, "run-1", core.EventDecision, map[string]interface{}{"risk": 0.1}, base.Add(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, ev1.Hash, ev2.PrevHash)
	assert.NotEqual(t, ev1.Hash, ev2.Hash)
}

func TestInMemoryEventStoreListOrderAndPagination(t *testing.T) {
	s := NewInMemoryEventStore()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, "run-1", core.EventTelemetry, map[string]interface{}{"i": i}, base.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "run-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	page, err := s.List(ctx, "run-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 2, page[0].Payload["i"])
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	s := NewInMemoryEventStore()
	ctx := context.Background()
	base := time.Now()
	_, err := s.Append(ctx, "run-1", core.EventTelemetry, map[string]interface{}{"x": 1.0}, base)
	require.NoError(t, err)
	_, err = s.Append(ctx, "run-1", core.EventDecision, map[string]interface{}{"risk": 0.1}, base.Add(time.Millisecond))
	require.NoError(t, err)

	events, err := s.List(ctx, "run-1", 0, 0)
	require.NoError(t, err)

	ok, err := s.VerifyChain(events)
	require.NoError(t, err)
	assert.True(t, ok)

	events[1].Payload["risk"] = 0.99 // tamper after the fact
	ok, err = s.VerifyChain(events)
	assert.False(t, ok)
	assert.ErrorIs(t, err, core.ErrChainIntegrityError)
}

func TestVerifyChainEmptyIsValid(t *testing.T) {
	s := NewInMemoryEventStore()
	ok, err := s.VerifyChain(nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExportBundleHashesAllEventHashes(t *testing.T) {
	s := NewInMemoryEventStore()
	ctx := context.Background()
	base := time.Now()
	_, err := s.Append(ctx, "run-1", core.EventTelemetry, map[string]interface{}{"x": 1.0}, base)
	require.NoError(t, err)

	ended := base.Add(time.Second)
	run := &core.Run{ID: "run-1", MissionID: "mission-1", Status: core.RunCompleted, StartedAt: base, EndedAt: &ended}

	telemetry := NewInMemoryTelemetryStore()
	require.NoError(t, telemetry.Append(ctx, &core.TelemetrySample{RunID: "run-1", Timestamp: base, Payload: map[string]interface{}{"x": 1.0}}))

	bundle, err := s.ExportBundle(ctx, run, telemetry)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.EventCount)
	assert.Len(t, bundle.BundleHash, 64)
	assert.Equal(t, "mission-1", bundle.MissionID)
	assert.Equal(t, core.RunCompleted, bundle.Status)
	assert.True(t, bundle.ChainValid)
	assert.Equal(t, "1.0", bundle.FormatVersion)
	assert.Len(t, bundle.Telemetry, 1)
}

func TestExportBundleOmitsTelemetryWhenStoreIsNil(t *testing.T) {
	s := NewInMemoryEventStore()
	ctx := context.Background()
	run := &core.Run{ID: "run-2", StartedAt: time.Now()}

	bundle, err := s.ExportBundle(ctx, run, nil)
	require.NoError(t, err)
	assert.Nil(t, bundle.Telemetry)
	assert.True(t, bundle.ChainValid)
}
