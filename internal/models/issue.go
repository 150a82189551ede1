package models

import "time"

// IssueStatus represents the state of an issue. The set is open-ended:
// the dashboard may write values outside the constants below, and no
// transition rules are enforced at this layer.
type IssueStatus string

const (
	IssueStatusUnverified IssueStatus = "unverified"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusClosed     IssueStatus = "closed"
)

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "low"
	IssuePriorityMedium IssuePriority = "medium"
	IssuePriorityHigh   IssuePriority = "high"
)

// Issue represents a support ticket tracked from a conversation thread.
// ThreadKey is the external conversation key in "channel:thread" form;
// rows written before channel info was recorded hold a bare thread
// timestamp instead.
type Issue struct {
	ID          string
	ProgramID   string // optional program reference ("" = none)
	Title       string
	Description string
	Status      IssueStatus
	Priority    IssuePriority
	Source      string
	ThreadKey   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}
