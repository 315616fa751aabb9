// Package compliance implements the Compliance Report (SPEC_FULL.md §4.10):
// a structured summary of one run's governance decisions plus its exported
// audit bundle, recovered from the distillation drop via
// original_source/backend/app/services/compliance_report.py. Rendering the
// full human-readable prose report is out of scope (spec.md §1); the
// structured Report value and its JSON/YAML export are what a downstream
// compliance consumer actually needs.
package compliance

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/store"
)

// criticalRiskThreshold marks a DECISION event's policy hits as critical
// violations, mirroring the Python original's severity=="HIGH" flag (this
// repo's GovernanceDecision carries a risk score instead of a discrete
// severity enum, so a high risk score stands in for "HIGH" here).
const criticalRiskThreshold = 0.9

// Metrics summarizes one run's governance decisions.
type Metrics struct {
	TotalDecisions      int            `json:"total_decisions" yaml:"total_decisions"`
	Approved            int            `json:"approved" yaml:"approved"`
	Denied              int            `json:"denied" yaml:"denied"`
	NeedsReview         int            `json:"needs_review" yaml:"needs_review"`
	ApprovalRate        float64        `json:"approval_rate" yaml:"approval_rate"`
	AvgRiskScore        float64        `json:"avg_risk_score" yaml:"avg_risk_score"`
	MaxRiskScore        float64        `json:"max_risk_score" yaml:"max_risk_score"`
	ViolationsByPolicy  map[string]int `json:"violations_by_policy" yaml:"violations_by_policy"`
	CriticalViolations  int            `json:"critical_violations" yaml:"critical_violations"`
}

// AuditEntry is one DECISION event rendered into the report's hash-chain
// view, mirroring the Python AuditEntry model.
type AuditEntry struct {
	Timestamp    string   `json:"timestamp" yaml:"timestamp"`
	EventID      string   `json:"event_id" yaml:"event_id"`
	ActionType   string   `json:"action_type" yaml:"action_type"`
	Approved     bool     `json:"approved" yaml:"approved"`
	RiskScore    float64  `json:"risk_score" yaml:"risk_score"`
	Violations   []string `json:"violations" yaml:"violations"`
	Hash         string   `json:"hash" yaml:"hash"`
	PreviousHash string   `json:"previous_hash" yaml:"previous_hash"`
}

// Report is the full compliance report for one run.
type Report struct {
	ReportID         string              `json:"report_id" yaml:"report_id"`
	RunID            string              `json:"run_id" yaml:"run_id"`
	Metrics          Metrics             `json:"metrics" yaml:"metrics"`
	AuditEntries     []AuditEntry        `json:"audit_entries" yaml:"audit_entries"`
	ChainValid       bool                `json:"chain_valid" yaml:"chain_valid"`
	BundleHash       string              `json:"bundle_hash" yaml:"bundle_hash"`
	EventCount       int                 `json:"event_count" yaml:"event_count"`
	FrameworkMapping map[string][]string `json:"framework_mapping" yaml:"framework_mapping"`
}

// Framework identifies a regulatory/standards mapping to attach to a report.
type Framework string

const (
	EUAIACT   Framework = "EU_AI_ACT"
	ISO42001  Framework = "ISO_42001"
	NISTAIRMF Framework = "NIST_AI_RMF"
)

// frameworkMappings carries the prose citations verbatim from the original
// Python service — these are static regulatory text, not derived from any
// run's data.
var frameworkMappings = map[Framework][]string{
	EUAIACT: {
		"Article 9: Risk Management System",
		"Article 11: Technical Documentation",
		"Article 12: Record-Keeping",
		"Article 13: Transparency",
		"Article 14: Human Oversight",
		"Article 15: Accuracy and Robustness",
	},
	ISO42001: {
		"Clause 6: Planning - Risk Assessment",
		"Clause 7: Support - Monitoring",
		"Clause 8: Operation - Risk Treatment",
		"Clause 9: Evaluation - Internal Audit",
		"Clause 10: Improvement - Continual",
	},
	NISTAIRMF: {
		"GOVERN: Policy configuration and access control",
		"MAP: Context-aware risk assessment",
		"MEASURE: Continuous risk scoring",
		"MANAGE: Real-time policy enforcement",
	},
}

// Generate builds a Report from an exported event bundle (store.Bundle),
// scoring only DECISION events (PLAN/TELEMETRY/EXECUTION/ALERT events carry
// no governance verdict to summarize).
func Generate(bundle *store.Bundle, framework Framework) (Report, error) {
	var entries []AuditEntry
	var riskScores []float64
	violations := map[string]int{}
	approved, denied, needsReview, critical := 0, 0, 0, 0

	for _, ev := range bundle.Events {
		if ev.Type != core.EventDecision {
			continue
		}
		gov, _ := ev.Payload["governance"].(map[string]interface{})
		decision, _ := gov["decision"].(string)
		risk, _ := gov["risk_score"].(float64)
		hits := stringSlice(gov["policy_hits"])

		switch core.Decision(decision) {
		case core.DecisionApproved:
			approved++
		case core.DecisionDenied:
			denied++
		case core.DecisionNeedsReview:
			needsReview++
		}
		riskScores = append(riskScores, risk)
		for _, h := range hits {
			violations[h]++
		}
		if risk >= criticalRiskThreshold {
			critical += len(hits)
		}

		actionType := "UNKNOWN"
		if proposal, ok := ev.Payload["proposal"].(map[string]interface{}); ok {
			if intent, ok := proposal["intent"].(string); ok {
				actionType = intent
			}
		}

		entries = append(entries, AuditEntry{
			Timestamp:    ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
			EventID:      ev.ID,
			ActionType:   actionType,
			Approved:     decision == string(core.DecisionApproved),
			RiskScore:    risk,
			Violations:   hits,
			Hash:         ev.Hash,
			PreviousHash: ev.PrevHash,
		})
	}

	total := approved + denied + needsReview
	metrics := Metrics{
		TotalDecisions:     total,
		Approved:           approved,
		Denied:             denied,
		NeedsReview:        needsReview,
		ViolationsByPolicy: violations,
		CriticalViolations: critical,
	}
	if total > 0 {
		metrics.ApprovalRate = float64(approved) / float64(total)
	}
	if len(riskScores) > 0 {
		sum, max := 0.0, riskScores[0]
		for _, r := range riskScores {
			sum += r
			if r > max {
				max = r
			}
		}
		metrics.AvgRiskScore = round3(sum / float64(len(riskScores)))
		metrics.MaxRiskScore = round3(max)
	}

	mapping := map[string][]string{string(framework): frameworkMappings[framework]}

	return Report{
		ReportID:         fmt.Sprintf("CR-%s", bundle.RunID),
		RunID:            bundle.RunID,
		Metrics:          metrics,
		AuditEntries:     entries,
		ChainValid:       bundle.ChainValid,
		BundleHash:       bundle.BundleHash,
		EventCount:       bundle.EventCount,
		FrameworkMapping: mapping,
	}, nil
}

// ExportJSON renders the report as indented JSON. The output is the Report
// structure, not the audit-bundle file format.
func (r Report) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ExportYAML renders the report as YAML, an alternate human-reviewable form
// of the same structured data (teacher convention: yaml.v3 for
// human-facing config/prompt files, adopted here for the compliance export).
func (r Report) ExportYAML() ([]byte, error) {
	return yaml.Marshal(r)
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
