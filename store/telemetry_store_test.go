package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetguard/governor/core"
)

func TestInMemoryTelemetryStoreAppendAndList(t *testing.T) {
	s := NewInMemoryTelemetryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		err := s.Append(ctx, &core.TelemetrySample{
			RunID:     "run-1",
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Payload:   map[string]interface{}{"i": i},
		})
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "run-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 0, all[0].Payload["i"])
	assert.Equal(t, 2, all[2].Payload["i"])
}

func TestInMemoryTelemetryStoreListPagination(t *testing.T) {
	s := NewInMemoryTelemetryStore()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &core.TelemetrySample{
			RunID: "run-1", Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Payload: map[string]interface{}{"i": i},
		}))
	}

	page, err := s.List(ctx, "run-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 2, page[0].Payload["i"])
}

func TestInMemoryTelemetryStoreListUnknownRunIsEmpty(t *testing.T) {
	s := NewInMemoryTelemetryStore()
	out, err := s.List(context.Background(), "no-such-run", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInMemoryTelemetryStoreKeepsRunsSeparate(t *testing.T) {
	s := NewInMemoryTelemetryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, &core.TelemetrySample{RunID: "run-a", Timestamp: time.Now()}))
	require.NoError(t, s.Append(ctx, &core.TelemetrySample{RunID: "run-b", Timestamp: time.Now()}))

	a, err := s.List(ctx, "run-a", 0, 0)
	require.NoError(t, err)
	assert.Len(t, a, 1)

	b, err := s.List(ctx, "run-b", 0, 0)
	require.NoError(t, err)
	assert.Len(t, b, 1)
}
