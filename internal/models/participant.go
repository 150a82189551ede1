package models

import "time"

// Participant roles.
const (
	ParticipantRoleRequester = "requester"
	ParticipantRoleWatcher   = "watcher"
)

// Participant links an external user to an issue with a role.
type Participant struct {
	ID        string
	IssueID   string
	UserID    string
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
	DeletedAt *time.Time
}
