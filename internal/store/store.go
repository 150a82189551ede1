package store

import (
	"context"
	"errors"

	"github.com/hackdesk/triage/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist or is
// soft-deleted. Callers distinguish it with errors.Is.
var ErrNotFound = errors.New("not found")

// ErrThreadExists is returned by CreateIssue when a live issue already
// holds the same thread key.
var ErrThreadExists = errors.New("issue already exists for thread")

// IssueListFilter specifies filters for listing issues.
type IssueListFilter struct {
	ProgramID string
	Status    models.IssueStatus
	Priority  models.IssuePriority
}

// Store defines the persistence interface for triage. All reads exclude
// soft-deleted rows; deletes are soft (deleted_at) only.
type Store interface {
	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	GetIssueByThreadKey(ctx context.Context, key string) (*models.Issue, error)
	GetIssueByThreadSuffix(ctx context.Context, thread string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	UpdateIssue(ctx context.Context, issue *models.Issue) error
	SoftDeleteIssue(ctx context.Context, id string) error

	// Events
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListIssueEvents(ctx context.Context, issueID string) ([]*models.Event, error)
	ListIssueEventsPage(ctx context.Context, issueID string, offset, limit int) ([]*models.Event, int, error)
	SetEventAIMetadata(ctx context.Context, eventID, metadata string) error

	// AI jobs
	CreateAIJob(ctx context.Context, job *models.AIJob) error
	GetAIJob(ctx context.Context, id string) (*models.AIJob, error)
	ListPendingAIJobs(ctx context.Context) ([]*models.AIJob, error)
	ClaimAIJob(ctx context.Context, id string) (bool, error)
	CompleteAIJob(ctx context.Context, id, output string) error
	FailAIJob(ctx context.Context, id, output string) error

	// Programs
	CreateProgram(ctx context.Context, p *models.Program) error
	GetProgram(ctx context.Context, id string) (*models.Program, error)
	GetProgramByExternalID(ctx context.Context, programID string) (*models.Program, error)
	GetProgramByChannel(ctx context.Context, channelID string) (*models.Program, error)
	ListPrograms(ctx context.Context) ([]*models.Program, error)
	UpdateProgram(ctx context.Context, p *models.Program) error
	SoftDeleteProgram(ctx context.Context, id string) error

	// Participants
	AddParticipant(ctx context.Context, p *models.Participant) error
	ListParticipants(ctx context.Context, issueID string) ([]*models.Participant, error)

	// Owner sets (ad-hoc ownership below the program tier)
	IsIssueOwner(ctx context.Context, issueID, userID string) (bool, error)
	SetIssueOwner(ctx context.Context, issueID, userID string) error
	RemoveIssueOwner(ctx context.Context, issueID, userID string) error
	IsChannelOwner(ctx context.Context, channelID, userID string) (bool, error)
	SetChannelOwner(ctx context.Context, channelID, userID string) error
	RemoveChannelOwner(ctx context.Context, channelID, userID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
