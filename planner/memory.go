package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetguard/governor/core"
)

// maxMemoryEntries bounds the sliding window of past decisions kept per
// run, matching original_source's AgentMemory(max_entries=20).
const maxMemoryEntries = 20

// promptMemoryEntries is how many of the most recent entries are rendered
// into the planning prompt (original_source keeps the prompt short by
// showing only the last 8).
const promptMemoryEntries = 8

// memoryEntry is recorded after every governance decision so the
// agentic planner can learn from recent history.
type memoryEntry struct {
	timestamp      time.Time
	intent         core.ActionIntent
	params         map[string]interface{}
	decision       core.Decision
	policyHits     []string
	reasons        []string
	policyState    core.PolicyState
	wasExecuted    bool
}

func (e memoryEntry) toText() string {
	hits := "none"
	if len(e.policyHits) > 0 {
		hits = strings.Join(e.policyHits, ", ")
	}
	reasons := "none"
	if len(e.reasons) > 0 {
		reasons = strings.Join(e.reasons, "; ")
	}
	return fmt.Sprintf("- Proposed %s %v -> %s (policies: %s). Reasons: %s. Executed: %t.",
		e.intent, e.params, e.decision, hits, reasons, e.wasExecuted)
}

// AgentMemory is a sliding window of past proposal/decision pairs,
// grounded on original_source's AgentMemory class.
type AgentMemory struct {
	entries []memoryEntry
}

// NewAgentMemory returns an empty memory window.
func NewAgentMemory() *AgentMemory {
	return &AgentMemory{}
}

// Add appends an entry, trimming to the last maxMemoryEntries.
func (m *AgentMemory) Add(proposal *core.ActionProposal, decision core.GovernanceDecision, wasExecuted bool) {
	m.entries = append(m.entries, memoryEntry{
		timestamp:   time.Now(),
		intent:      proposal.Intent,
		params:      proposal.Params,
		decision:    decision.Decision,
		policyHits:  decision.PolicyHits,
		reasons:     decision.Reasons,
		policyState: decision.PolicyState,
		wasExecuted: wasExecuted,
	})
	if len(m.entries) > maxMemoryEntries {
		m.entries = m.entries[len(m.entries)-maxMemoryEntries:]
	}
}

// ToContext renders the last promptMemoryEntries entries for inclusion in
// a planning prompt.
func (m *AgentMemory) ToContext() string {
	if len(m.entries) == 0 {
		return "No previous decisions."
	}
	start := 0
	if len(m.entries) > promptMemoryEntries {
		start = len(m.entries) - promptMemoryEntries
	}
	var lines []string
	for _, e := range m.entries[start:] {
		lines = append(lines, e.toText())
	}
	return "Recent decision history:\n" + strings.Join(lines, "\n")
}

// DenialCount reports how many of the last n entries were DENIED or
// NEEDS_REVIEW.
func (m *AgentMemory) DenialCount(n int) int {
	start := 0
	if len(m.entries) > n {
		start = len(m.entries) - n
	}
	count := 0
	for _, e := range m.entries[start:] {
		if e.decision == core.DecisionDenied || e.decision == core.DecisionNeedsReview {
			count++
		}
	}
	return count
}

// LastDenialReasons returns the reasons attached to the most recent
// non-approved decision, or nil if none exists.
func (m *AgentMemory) LastDenialReasons() []string {
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.decision == core.DecisionDenied || e.decision == core.DecisionNeedsReview {
			return e.reasons
		}
	}
	return nil
}

// Len reports the number of entries currently held.
func (m *AgentMemory) Len() int {
	return len(m.entries)
}

// Summary mirrors original_source's get_memory_summary(), exposing memory
// state for diagnostics/compliance inspection.
type Summary struct {
	TotalEntries  int
	RecentDenials int
	Entries       []SummaryEntry
}

// SummaryEntry is one memory item surfaced by Summary.
type SummaryEntry struct {
	Intent     core.ActionIntent
	Params     map[string]interface{}
	Decision   core.Decision
	PolicyHits []string
	Executed   bool
}

// GetMemorySummary returns the last 10 entries plus aggregate stats.
func (m *AgentMemory) GetMemorySummary() Summary {
	start := 0
	if len(m.entries) > 10 {
		start = len(m.entries) - 10
	}
	s := Summary{TotalEntries: len(m.entries), RecentDenials: m.DenialCount(5)}
	for _, e := range m.entries[start:] {
		s.Entries = append(s.Entries, SummaryEntry{
			Intent:     e.intent,
			Params:     e.params,
			Decision:   e.decision,
			PolicyHits: e.policyHits,
			Executed:   e.wasExecuted,
		})
	}
	return s
}
