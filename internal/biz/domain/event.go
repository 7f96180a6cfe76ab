package domain

import "time"

// Severity classifies audit events. Critical events are persisted
// synchronously at append time; lower severities accept a bounded loss
// window in exchange for batched writes.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AuditEvent records who changed what. Buffered in memory and promoted
// to durable storage on flush, or immediately for critical severity.
type AuditEvent struct {
	ID        string
	Action    string
	Severity  Severity
	GuildID   string
	ChannelID string
	BoardID   string
	Actor     string
	Detail    string
	CreatedAt time.Time
}

// Critical reports whether the event must be durable at append time
func (e *AuditEvent) Critical() bool {
	return e.Severity == SeverityCritical
}

// MetricRecord is a buffered analytics data point
type MetricRecord struct {
	ID        string
	Name      string
	Value     float64
	GuildID   string
	BoardID   string
	CreatedAt time.Time
}

// Notification is a rendered board-change event ready for channel delivery
type Notification struct {
	BoardID   string
	BoardName string
	Action    string
	CardName  string
	ListName  string
	Actor     string
}

// Title renders the notification headline
func (n *Notification) Title() string {
	if n.BoardName != "" {
		return n.BoardName + ": " + n.Action
	}
	return n.Action
}
