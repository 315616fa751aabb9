// Package mission implements the Mission Store and its append-only
// MissionAudit trail (spec.md §4.9), recovered from the distillation drop
// via original_source/backend/app/services/mission_service.py. Missions
// are control-plane records (what to do), separate from the hash-chained
// Run event log (what happened) owned by the store package.
package mission

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/ids"
)

// Store holds Mission records and their audit trail in memory, mirroring
// store.InMemoryEventStore's mutex+map shape.
type Store struct {
	mu      sync.RWMutex
	clock   core.Clock
	logger  core.Logger
	records map[string]*core.Mission
	audits  map[string][]*core.MissionAudit // mission ID -> audit entries, append order
}

// New constructs an empty Store. clock and logger may be nil, defaulting
// to the system clock and a no-op logger.
func New(clock core.Clock, logger core.Logger) *Store {
	if clock == nil {
		clock = core.NewSystemClock()
	}
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &Store{
		clock:   clock,
		logger:  logger,
		records: map[string]*core.Mission{},
		audits:  map[string][]*core.MissionAudit{},
	}
}

// Create inserts a new Mission in MissionDraft status and records a
// CREATED audit entry.
func (s *Store) Create(title string, goal map[string]interface{}) *core.Mission {
	now := s.clock.Now()
	m := &core.Mission{
		ID:        ids.NewMissionID(),
		Title:     title,
		Goal:      goal,
		Status:    core.MissionDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.records[m.ID] = m
	s.appendAuditLocked(m.ID, "CREATED", nil, map[string]interface{}{"title": title, "goal": goal, "status": string(core.MissionDraft)}, fmt.Sprintf("Mission created: %s", title), "operator")
	s.mu.Unlock()

	return m
}

// Get returns the Mission by ID, or nil if it doesn't exist.
func (s *Store) Get(id string) *core.Mission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}

// List returns missions ordered by CreatedAt descending, optionally
// including soft-deleted ones.
func (s *Store) List(includeDeleted bool, limit, offset int) []*core.Mission {
	s.mu.RLock()
	all := make([]*core.Mission, 0, len(s.records))
	for _, m := range s.records {
		if !includeDeleted && m.Status == core.MissionDeleted {
			continue
		}
		all = append(all, m)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return []*core.Mission{}
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// UpdateGoal replaces a mission's goal, provided it is in a state that
// permits editing (spec.md §3: "editable only in {draft, paused}").
// Returns core.ErrPreconditionFailed if the mission cannot currently be
// edited, or core.ErrNotFound if it doesn't exist.
func (s *Store) UpdateGoal(id string, newGoal map[string]interface{}) (*core.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", id, core.ErrNotFound)
	}
	if !m.CanEditGoal() {
		return nil, fmt.Errorf("mission %s in status %s: %w", id, m.Status, core.ErrPreconditionFailed)
	}

	oldGoal := m.Goal
	m.Goal = newGoal
	m.UpdatedAt = s.clock.Now()
	s.appendAuditLocked(id, "UPDATED", map[string]interface{}{"goal": oldGoal}, map[string]interface{}{"goal": newGoal}, "Updated: goal", "operator")
	return m, nil
}

// UpdateTitle renames a mission, same editability rule as UpdateGoal.
func (s *Store) UpdateTitle(id, newTitle string) (*core.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", id, core.ErrNotFound)
	}
	if !m.CanEditGoal() {
		return nil, fmt.Errorf("mission %s in status %s: %w", id, m.Status, core.ErrPreconditionFailed)
	}

	oldTitle := m.Title
	m.Title = newTitle
	m.UpdatedAt = s.clock.Now()
	s.appendAuditLocked(id, "UPDATED", map[string]interface{}{"title": oldTitle}, map[string]interface{}{"title": newTitle}, "Updated: title", "operator")
	return m, nil
}

// setStatus is the shared machinery behind Start/Pause/Resume/Complete/
// Fail/SoftDelete: every status transition appends a STATUS_CHANGE audit
// entry (spec.md §3: "every mutation appends a MissionAudit entry").
func (s *Store) setStatus(id string, newStatus core.MissionStatus, details, actor string) (*core.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", id, core.ErrNotFound)
	}
	oldStatus := m.Status
	m.Status = newStatus
	m.UpdatedAt = s.clock.Now()
	if details == "" {
		details = fmt.Sprintf("Status: %s -> %s", oldStatus, newStatus)
	}
	s.appendAuditLocked(id, "STATUS_CHANGE", map[string]interface{}{"status": string(oldStatus)}, map[string]interface{}{"status": string(newStatus)}, details, actor)
	return m, nil
}

// Start transitions a draft mission to executing, called when a Run
// Controller begins its tick loop for it.
func (s *Store) Start(id string) (*core.Mission, error) {
	return s.setStatus(id, core.MissionExecuting, "", "operator")
}

// Pause transitions an executing mission to paused.
func (s *Store) Pause(id string) (*core.Mission, error) {
	return s.setStatus(id, core.MissionPaused, "", "operator")
}

// Resume transitions a paused mission back to executing.
func (s *Store) Resume(id string) (*core.Mission, error) {
	return s.setStatus(id, core.MissionExecuting, "", "operator")
}

// Complete marks a mission completed.
func (s *Store) Complete(id string) (*core.Mission, error) {
	return s.setStatus(id, core.MissionCompleted, "", "system")
}

// Fail marks a mission failed, with a reason recorded in the audit
// details.
func (s *Store) Fail(id, reason string) (*core.Mission, error) {
	return s.setStatus(id, core.MissionFailed, reason, "system")
}

// SoftDelete marks a mission deleted without removing its record or
// audit history.
func (s *Store) SoftDelete(id string) (*core.Mission, error) {
	return s.setStatus(id, core.MissionDeleted, "Mission soft-deleted", "operator")
}

// Replay resets a completed/failed/paused mission back to draft so it can
// be re-executed, mirroring original_source's replay().
func (s *Store) Replay(id string) (*core.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", id, core.ErrNotFound)
	}
	switch m.Status {
	case core.MissionCompleted, core.MissionFailed, core.MissionPaused:
	default:
		return nil, fmt.Errorf("mission %s in status %s: %w", id, m.Status, core.ErrPreconditionFailed)
	}
	oldStatus := m.Status
	m.Status = core.MissionDraft
	m.UpdatedAt = s.clock.Now()
	s.appendAuditLocked(id, "REPLAYED", map[string]interface{}{"status": string(oldStatus)}, map[string]interface{}{"status": string(core.MissionDraft)}, fmt.Sprintf("Mission replayed from %s", oldStatus), "operator")
	return m, nil
}

// AuditTrail returns the audit entries for a mission (or every mission if
// id is empty), newest first.
func (s *Store) AuditTrail(id string, limit, offset int) []*core.MissionAudit {
	s.mu.RLock()
	var all []*core.MissionAudit
	if id != "" {
		all = append(all, s.audits[id]...)
	} else {
		for _, entries := range s.audits {
			all = append(all, entries...)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })

	if offset >= len(all) {
		return []*core.MissionAudit{}
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func (s *Store) appendAuditLocked(missionID, action string, oldValues, newValues map[string]interface{}, details, actor string) {
	entry := &core.MissionAudit{
		ID:        ids.NewAuditID(),
		MissionID: missionID,
		OldValues: oldValues,
		NewValues: newValues,
		Actor:     actor,
		Details:   fmt.Sprintf("[%s] %s", action, details),
		Timestamp: s.clock.Now(),
	}
	s.audits[missionID] = append(s.audits[missionID], entry)
	s.logger.Debug("mission audit recorded", map[string]interface{}{"mission_id": missionID, "action": action})
}
