// Package ids generates prefixed identifiers for every entity kind in the
// governed mission runtime, grounded on the teacher's uuid.New().String()
// convention (core/agent.go, core/tool.go, orchestration/task_api.go).
package ids

import "github.com/google/uuid"

// New returns a prefixed unique identifier, e.g. New("mission") ->
// "mission-3fae7c21-....".
func New(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

// NewMissionID returns a new Mission identifier.
func NewMissionID() string { return New("mission") }

// NewRunID returns a new Run identifier.
func NewRunID() string { return New("run") }

// NewEventID returns a new Event identifier.
func NewEventID() string { return New("event") }

// NewAuditID returns a new MissionAudit identifier.
func NewAuditID() string { return New("audit") }

// NewSubscriptionHandle returns a new Broadcaster subscription handle.
func NewSubscriptionHandle() string { return New("sub") }

// NewReportID returns a new ComplianceReport identifier.
func NewReportID() string { return New("report") }
