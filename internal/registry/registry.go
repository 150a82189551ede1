// Package registry maps external conversation threads to issues. Each
// (channel, thread) pair resolves to at most one live issue; the unique
// index on the thread key makes concurrent creates race-safe.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/store"
)

// Registry resolves and creates issues for conversation threads.
type Registry struct {
	store store.Store
}

// New creates a Registry backed by the given store.
func New(s store.Store) *Registry {
	return &Registry{store: s}
}

// ThreadKey encodes a channel and thread timestamp into the composite
// key format. Older issue rows may still hold a bare thread timestamp;
// Resolve tolerates both.
func ThreadKey(channelID, threadTS string) string {
	return channelID + ":" + threadTS
}

// CreateResult reports whether Create inserted a new issue or found an
// existing one for the same thread.
type CreateResult struct {
	Issue   *models.Issue
	Created bool
}

// Resolve finds the live issue for a thread. It tries the composite key
// first, then falls back to matching the bare thread timestamp against
// composite and legacy keys. Returns store.ErrNotFound when no live
// issue exists for the thread.
func (r *Registry) Resolve(ctx context.Context, channelID, threadTS string) (*models.Issue, error) {
	if channelID != "" {
		issue, err := r.store.GetIssueByThreadKey(ctx, ThreadKey(channelID, threadTS))
		if err == nil {
			return issue, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	// Suffix match covers lookups without channel info against composite keys.
	issue, err := r.store.GetIssueByThreadSuffix(ctx, threadTS)
	if err == nil {
		return issue, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// Legacy rows hold the bare thread timestamp as the whole key.
	return r.store.GetIssueByThreadKey(ctx, threadTS)
}

// Create registers an issue for a thread. If a live issue already holds
// the thread key, the existing issue is returned with Created=false, so
// duplicate triggers can never produce two issues for one thread.
// The originating channel's program, if any, is linked at creation.
func (r *Registry) Create(ctx context.Context, channelID, threadTS, title, description, source string) (*CreateResult, error) {
	issue := &models.Issue{
		Title:       title,
		Description: description,
		Status:      models.IssueStatusUnverified,
		Priority:    models.IssuePriorityLow,
		Source:      source,
		ThreadKey:   ThreadKey(channelID, threadTS),
	}
	if issue.Title == "" {
		issue.Title = fmt.Sprintf("Issue from thread %s", threadTS)
	}

	program, err := r.store.GetProgramByChannel(ctx, channelID)
	if err == nil {
		issue.ProgramID = program.ID
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	err = r.store.CreateIssue(ctx, issue)
	if err == nil {
		return &CreateResult{Issue: issue, Created: true}, nil
	}
	if !errors.Is(err, store.ErrThreadExists) {
		return nil, err
	}

	// Lost the race (or duplicate trigger): hand back the winner.
	existing, resolveErr := r.Resolve(ctx, channelID, threadTS)
	if resolveErr != nil {
		return nil, fmt.Errorf("resolve existing issue after conflict: %w", resolveErr)
	}
	return &CreateResult{Issue: existing, Created: false}, nil
}

// LinkProgram sets the issue's program reference. Returns
// store.ErrNotFound when the program or issue does not exist.
func (r *Registry) LinkProgram(ctx context.Context, issueID, programID string) (*models.Issue, error) {
	program, err := r.store.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	issue, err := r.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	issue.ProgramID = program.ID
	if err := r.store.UpdateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}
