// Package store persists a Run's hash-chained Events and unchained
// TelemetrySamples behind a common interface, with in-memory and
// Redis-backed implementations (spec.md §4.2), grounded on the teacher's
// dual pkg/memory.InMemoryStore / pkg/memory.RedisMemory shape.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/hashchain"
)

// EventStore appends and reads a Run's tamper-evident event chain.
//
// Concurrency contract: Append must be single-writer per run_id (the Run
// Controller owns this); concurrent Appends across different run_ids are
// safe. List and VerifyChain are read-only and safe for any concurrency.
type EventStore interface {
	// Append computes hash from the last stored event for runID (or the
	// zero hash if none) and inserts a new Event. ts is supplied by the
	// caller so the same timestamp can be reused in the payload.
	Append(ctx context.Context, runID string, typ core.EventType, payload map[string]interface{}, ts time.Time) (*core.Event, error)

	// List returns events for runID ordered by ts ascending, paginated.
	List(ctx context.Context, runID string, limit, offset int) ([]*core.Event, error)

	// Last returns the most recently appended event for runID, or nil if
	// none exists.
	Last(ctx context.Context, runID string) (*core.Event, error)

	// VerifyChain checks hash linkage and re-derivation across an ordered
	// slice of events. A nil/empty slice is vacuously valid.
	VerifyChain(events []*core.Event) (bool, error)

	// ExportBundle assembles the full audit bundle for run per spec.md §6:
	// the run's identity/status/timestamps, its event chain, its telemetry
	// history (from telemetry, which may be nil to omit it), and chain
	// validity as computed by VerifyChain.
	ExportBundle(ctx context.Context, run *core.Run, telemetry TelemetryStore) (*Bundle, error)
}

// Bundle is the exportable audit package for one run, per spec.md §6's
// "Audit bundle (file format)".
type Bundle struct {
	RunID         string                  `json:"run_id"`
	MissionID     string                  `json:"mission_id"`
	Status        core.RunStatus          `json:"status"`
	StartedAt     time.Time               `json:"started_at"`
	EndedAt       *time.Time              `json:"ended_at,omitempty"`
	Events        []*core.Event           `json:"events"`
	Telemetry     []*core.TelemetrySample `json:"telemetry"`
	EventCount    int                     `json:"event_count"`
	ChainValid    bool                    `json:"chain_valid"`
	BundleHash    string                  `json:"bundle_hash"`
	FormatVersion string                  `json:"format_version"`
}

// hashInput is the exact shape hashed to produce an Event's hash, per
// spec.md §4.2: SHA-256(canonical({run_id, ts, type, payload, prev_hash})).
type hashInput struct {
	RunID    string                 `json:"run_id"`
	Ts       int64                  `json:"ts"`
	Type     core.EventType         `json:"type"`
	Payload  map[string]interface{} `json:"payload"`
	PrevHash string                 `json:"prev_hash"`
}

func computeHash(runID string, ts time.Time, typ core.EventType, payload map[string]interface{}, prevHash string) (string, error) {
	return hashchain.Hash(hashInput{
		RunID:    runID,
		Ts:       ts.UnixNano(),
		Type:     typ,
		Payload:  payload,
		PrevHash: prevHash,
	})
}

// InMemoryEventStore is the default EventStore backend: a per-run append
// log guarded by a single mutex, adequate for a single-process deployment
// or tests. Appends for all runs take the same lock, so appends to
// different runs are serialized with each other.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]*core.Event // runID -> ordered chain
}

// NewInMemoryEventStore returns an empty InMemoryEventStore.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[string][]*core.Event)}
}

func (s *InMemoryEventStore) Append(ctx context.Context, runID string, typ core.EventType, payload map[string]interface{}, ts time.Time) (*core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.events[runID]
	prevHash := core.ZeroHash
	if len(chain) > 0 {
		prevHash = chain[len(chain)-1].Hash
	}

	h, err := computeHash(runID, ts, typ, payload, prevHash)
	if err != nil {
		return nil, core.NewRuntimeError("store.Append", "hashchain", runID, err)
	}

	ev := &core.Event{
		ID:        runID + "-ev-" + fmt.Sprint(len(chain)),
		RunID:     runID,
		Timestamp: ts,
		Type:      typ,
		Payload:   payload,
		PrevHash:  prevHash,
		Hash:      h,
	}
	s.events[runID] = append(chain, ev)
	return ev, nil
}

func (s *InMemoryEventStore) List(ctx context.Context, runID string, limit, offset int) ([]*core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.events[runID]
	if offset >= len(chain) {
		return []*core.Event{}, nil
	}
	end := len(chain)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*core.Event, end-offset)
	copy(out, chain[offset:end])
	return out, nil
}

func (s *InMemoryEventStore) Last(ctx context.Context, runID string) (*core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.events[runID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

func (s *InMemoryEventStore) VerifyChain(events []*core.Event) (bool, error) {
	return verifyChain(events)
}

func verifyChain(events []*core.Event) (bool, error) {
	prev := core.ZeroHash
	for i, ev := range events {
		if ev.PrevHash != prev {
			return false, fmt.Errorf("%w: event %d prev_hash mismatch", core.ErrChainIntegrityError, i)
		}
		recomputed, err := computeHash(ev.RunID, ev.Timestamp, ev.Type, ev.Payload, ev.PrevHash)
		if err != nil {
			return false, fmt.Errorf("%w: event %d: %v", core.ErrChainIntegrityError, i, err)
		}
		if recomputed != ev.Hash {
			return false, fmt.Errorf("%w: event %d hash does not re-derive", core.ErrChainIntegrityError, i)
		}
		prev = ev.Hash
	}
	return true, nil
}

func (s *InMemoryEventStore) ExportBundle(ctx context.Context, run *core.Run, telemetry TelemetryStore) (*Bundle, error) {
	events, err := s.List(ctx, run.ID, 0, 0)
	if err != nil {
		return nil, err
	}
	valid, _ := s.VerifyChain(events)
	samples, err := listTelemetry(ctx, run.ID, telemetry)
	if err != nil {
		return nil, err
	}
	return buildBundle(run, events, samples, valid)
}

func listTelemetry(ctx context.Context, runID string, telemetry TelemetryStore) ([]*core.TelemetrySample, error) {
	if telemetry == nil {
		return nil, nil
	}
	return telemetry.List(ctx, runID, 0, 0)
}

func buildBundle(run *core.Run, events []*core.Event, telemetry []*core.TelemetrySample, chainValid bool) (*Bundle, error) {
	hashes := make([]string, len(events))
	for i, ev := range events {
		hashes[i] = ev.Hash
	}
	bundleHash, err := hashchain.Hash(map[string]interface{}{
		"run_id":       run.ID,
		"event_hashes": hashes,
	})
	if err != nil {
		return nil, core.NewRuntimeError("store.ExportBundle", "hashchain", run.ID, err)
	}
	return &Bundle{
		RunID:         run.ID,
		MissionID:     run.MissionID,
		Status:        run.Status,
		StartedAt:     run.StartedAt,
		EndedAt:       run.EndedAt,
		Events:        events,
		Telemetry:     telemetry,
		EventCount:    len(events),
		ChainValid:    chainValid,
		BundleHash:    bundleHash,
		FormatVersion: "1.0",
	}, nil
}
