// Package ingest turns raw conversation messages into issue records:
// one issue per thread, one event per message, one pending
// summarization job per new issue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hackdesk/triage/internal/ai"
	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/registry"
	"github.com/hackdesk/triage/internal/store"
)

// Message is one conversation message from the external source, oldest
// first in a thread.
type Message struct {
	Author         string
	Body           string
	ExternalID     string
	AttachmentURLs []string
}

// ThreadResult describes what ingesting a thread produced.
type ThreadResult struct {
	Issue        *models.Issue
	Created      bool
	EventCount   int
	Participants int
	Job          *models.AIJob
}

// Service ingests threads and follow-up messages.
type Service struct {
	store    store.Store
	registry *registry.Registry
	pipeline *ai.Pipeline
	source   string
	log      *slog.Logger
}

// New creates an ingest Service. source tags created records (e.g.
// "slack").
func New(s store.Store, r *registry.Registry, p *ai.Pipeline, source string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, registry: r, pipeline: p, source: source, log: log}
}

// titleFromMessage derives an issue title from the thread's first
// message, truncated with an ellipsis.
func titleFromMessage(text string) string {
	if text == "" {
		return "Untitled Issue"
	}
	runes := []rune(text)
	if len(runes) > 100 {
		return string(runes[:100]) + "..."
	}
	return text
}

// IngestThread registers an issue for the thread and persists its
// messages. If an issue already exists for the thread it is returned
// with Created=false and no events or jobs are added, so duplicate
// triggers stay idempotent. requester is the user who triggered the
// ingestion; every other message author is recorded as a watcher.
func (s *Service) IngestThread(ctx context.Context, channelID, threadTS string, msgs []Message, requester string) (*ThreadResult, error) {
	var first Message
	if len(msgs) > 0 {
		first = msgs[0]
	}

	result, err := s.registry.Create(ctx, channelID, threadTS,
		titleFromMessage(first.Body),
		fmt.Sprintf("Issue created from %s thread in channel %s", s.source, channelID),
		s.source,
	)
	if err != nil {
		return nil, err
	}
	if !result.Created {
		return &ThreadResult{Issue: result.Issue, Created: false}, nil
	}
	issue := result.Issue

	var events []*models.Event
	for _, msg := range msgs {
		event := &models.Event{
			IssueID:     issue.ID,
			Source:      s.source,
			ExternalID:  msg.ExternalID,
			Author:      authorOrUnknown(msg.Author),
			Body:        msg.Body,
			EventType:   models.EventTypeMessage,
			Attachments: msg.AttachmentURLs,
		}
		if err := s.store.CreateEvent(ctx, event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	participants := s.recordParticipants(ctx, issue.ID, msgs, requester)

	var job *models.AIJob
	if len(events) > 0 {
		job, err = s.pipeline.Enqueue(ctx, events[0].ID, models.AIJobTypeFullExtraction)
		if err != nil {
			return nil, err
		}
	}

	return &ThreadResult{
		Issue:        issue,
		Created:      true,
		EventCount:   len(events),
		Participants: participants,
		Job:          job,
	}, nil
}

// recordParticipants adds the requester plus each distinct message
// author. Participant bookkeeping is best effort and never blocks
// ingestion.
func (s *Service) recordParticipants(ctx context.Context, issueID string, msgs []Message, requester string) int {
	seen := map[string]bool{}
	count := 0

	add := func(userID, role string) {
		if userID == "" || seen[userID] {
			return
		}
		seen[userID] = true
		err := s.store.AddParticipant(ctx, &models.Participant{
			IssueID: issueID,
			UserID:  userID,
			Role:    role,
		})
		if err != nil {
			s.log.Warn("add participant", "issue", issueID, "user", userID, "error", err)
			return
		}
		count++
	}

	add(requester, models.ParticipantRoleRequester)
	for _, msg := range msgs {
		add(msg.Author, models.ParticipantRoleWatcher)
	}
	return count
}

// AppendMessage adds a follow-up message to the thread's existing
// issue. Returns store.ErrNotFound when no issue tracks the thread;
// callers ignore messages in untracked threads.
func (s *Service) AppendMessage(ctx context.Context, channelID, threadTS string, msg Message) (*models.Event, error) {
	issue, err := s.registry.Resolve(ctx, channelID, threadTS)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		IssueID:     issue.ID,
		Source:      s.source,
		ExternalID:  msg.ExternalID,
		Author:      authorOrUnknown(msg.Author),
		Body:        msg.Body,
		EventType:   models.EventTypeMessage,
		Attachments: msg.AttachmentURLs,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	s.log.Info("added message to issue", "issue", issue.ID, "event", event.ID)
	return event, nil
}

func authorOrUnknown(author string) string {
	if author == "" {
		return "unknown"
	}
	return author
}

// IsNotTracked reports whether err just means the thread has no issue.
func IsNotTracked(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
