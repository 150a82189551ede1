package models

import "time"

// EventTypeMessage is the event type for an ingested conversation message.
const EventTypeMessage = "message_added"

// Event is one message in an issue's conversation history. Events are
// immutable after creation except for AIMetadata, which a completed
// summarization job sets once.
type Event struct {
	ID          string
	IssueID     string
	Source      string
	ExternalID  string // message timestamp in the source system
	Author      string
	Body        string
	EventType   string
	AIMetadata  string // JSON object written by a completed AI job ("" = none)
	Attachments []string
	CreatedAt   time.Time
	DeletedAt   *time.Time
}
