// Package audit keeps the append-only log of notable actions: imports,
// blocks, payments and configuration changes.
package audit

import "time"

// Severity classifies an audit entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityAlert   Severity = "alert"
	SeverityPayment Severity = "payment"
)

// DefaultActor is recorded when no user is attached to an action.
const DefaultActor = "system"

// Entry is one audit log row.
type Entry struct {
	ID       int64     `json:"id"`
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	Severity Severity  `json:"severity"`
	Detail   string    `json:"detail,omitempty"`
}
