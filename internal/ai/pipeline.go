package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/store"
)

// systemPrompt is the fixed instruction for full_extraction jobs.
const systemPrompt = `You are an AI assistant that analyzes support conversations.
Your job is to:
1. Summarize the main issue or request
2. Identify key discussion points
3. Extract any action items or promises made
4. Determine the current status and next steps
5. Assess the urgency and sentiment

Respond in JSON format with the following structure:
{
    "summary": "Brief overview of the issue",
    "main_issue": "The core problem or request",
    "key_points": ["point 1", "point 2", ...],
    "action_items": ["action 1", "action 2", ...],
    "promises": ["promise 1", "promise 2", ...],
    "next_steps": "What should happen next",
    "urgency": "low|medium|high",
    "sentiment": "positive|neutral|negative",
    "suggested_tags": ["tag1", "tag2", ...]
}`

// titleLimit caps issue titles rebuilt from a summary's main_issue.
const titleLimit = 200

// Pipeline creates, executes, and records the outcomes of AI jobs, and
// reconciles issues from completed summaries.
type Pipeline struct {
	store store.Store
	gen   Generator
	log   *slog.Logger
}

// NewPipeline creates a Pipeline. The generator may be nil when no AI
// backend is configured; execution then fails jobs with the
// precondition error instead of calling out.
func NewPipeline(s store.Store, gen Generator, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{store: s, gen: gen, log: log}
}

// Enqueue inserts a pending job anchored on the given event. It does
// not execute the job.
func (p *Pipeline) Enqueue(ctx context.Context, eventID, jobType string) (*models.AIJob, error) {
	job := &models.AIJob{
		EventID: eventID,
		JobType: jobType,
		Status:  models.AIJobStatusPending,
	}
	if err := p.store.CreateAIJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListPending returns jobs waiting for a worker, oldest first.
func (p *Pipeline) ListPending(ctx context.Context) ([]*models.AIJob, error) {
	return p.store.ListPendingAIJobs(ctx)
}

// Execute claims and runs one job. All faults terminate inside the job
// boundary: failures are recorded on the job, never returned. The
// returned job reflects the final state. Executing a job that is not
// pending (already claimed, or terminal) is a no-op returning the job
// unchanged.
func (p *Pipeline) Execute(ctx context.Context, job *models.AIJob) *models.AIJob {
	claimed, err := p.store.ClaimAIJob(ctx, job.ID)
	if err != nil {
		p.log.Error("claim ai job", "job", job.ID, "error", err)
		return job
	}
	if !claimed {
		p.log.Debug("ai job not pending, skipping", "job", job.ID, "status", job.Status)
		return job
	}
	job.Status = models.AIJobStatusProcessing

	event, err := p.store.GetEvent(ctx, job.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return p.fail(ctx, job, "Event not found")
		}
		return p.fail(ctx, job, err.Error())
	}

	issue, err := p.store.GetIssue(ctx, event.IssueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return p.fail(ctx, job, "Issue not found")
		}
		return p.fail(ctx, job, err.Error())
	}

	if job.JobType != models.AIJobTypeFullExtraction {
		return p.fail(ctx, job, fmt.Sprintf("unknown job type: %s", job.JobType))
	}

	summary, err := p.SummarizeThread(ctx, issue.ID)
	if err != nil {
		return p.fail(ctx, job, err.Error())
	}

	output := summary.Encode()
	if err := p.store.CompleteAIJob(ctx, job.ID, output); err != nil {
		p.log.Error("record ai job completion", "job", job.ID, "error", err)
		return job
	}
	if err := p.store.SetEventAIMetadata(ctx, event.ID, output); err != nil {
		p.log.Error("attach summary to event", "job", job.ID, "event", event.ID, "error", err)
	}

	done, err := p.store.GetAIJob(ctx, job.ID)
	if err != nil {
		job.Status = models.AIJobStatusCompleted
		job.Output = output
		return job
	}
	return done
}

// fail records a terminal failure with the error message as output.
func (p *Pipeline) fail(ctx context.Context, job *models.AIJob, msg string) *models.AIJob {
	output := errorPayload(msg)
	if err := p.store.FailAIJob(ctx, job.ID, output); err != nil {
		p.log.Error("record ai job failure", "job", job.ID, "error", err)
	}
	job.Status = models.AIJobStatusFailed
	job.Output = output
	p.log.Warn("ai job failed", "job", job.ID, "type", job.JobType, "error", msg)
	return job
}

// SummarizeThread gathers the issue's conversation and asks the model
// for a structured summary. Malformed model output degrades to a
// raw-text summary; network and precondition failures are returned.
func (p *Pipeline) SummarizeThread(ctx context.Context, issueID string) (*Summary, error) {
	if p.gen == nil {
		return nil, ErrNoAPIKey
	}

	events, err := p.store.ListIssueEvents(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no messages found for this issue")
	}

	var lines []string
	for _, event := range events {
		if event.Body == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", event.Author, event.Body))
	}
	threadText := strings.Join(lines, "\n\n")

	user := "Analyze this support thread:\n\n" + threadText
	content, err := p.gen.Generate(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}

	return ParseSummary(content), nil
}

// ReconcileIssue rewrites the issue's title and description from a
// completed summary: main_issue becomes the title (truncated), and the
// description is rebuilt from the summary text plus key-point and
// action-item bullet blocks. Returns store.ErrNotFound when the issue
// no longer exists.
func (p *Pipeline) ReconcileIssue(ctx context.Context, issueID string, summary *Summary) (*models.Issue, error) {
	issue, err := p.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	if summary.MainIssue != "" {
		issue.Title = truncateRunes(summary.MainIssue, titleLimit)
	}

	if summary.Summary != "" {
		parts := []string{summary.Summary}
		if len(summary.KeyPoints) > 0 {
			parts = append(parts, "\nKey Points:")
			for _, point := range summary.KeyPoints {
				parts = append(parts, "• "+point)
			}
		}
		if len(summary.ActionItems) > 0 {
			parts = append(parts, "\nAction Items:")
			for _, item := range summary.ActionItems {
				parts = append(parts, "• "+item)
			}
		}
		issue.Description = strings.Join(parts, "\n")
	}

	if err := p.store.UpdateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// ProcessPending drains the pending queue sequentially, reconciling the
// issue after each completed summarization. Individual job failures are
// recorded on the jobs and do not stop the drain.
func (p *Pipeline) ProcessPending(ctx context.Context) (int, error) {
	jobs, err := p.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		p.log.Info("processing ai job", "job", job.ID, "type", job.JobType)
		done := p.Execute(ctx, job)
		if done.Status != models.AIJobStatusCompleted {
			continue
		}

		summary := DecodeSummary(done.Output)
		if summary == nil {
			continue
		}
		event, err := p.store.GetEvent(ctx, done.EventID)
		if err != nil {
			p.log.Warn("anchor event gone after completion", "job", done.ID, "error", err)
			continue
		}
		if _, err := p.ReconcileIssue(ctx, event.IssueID, summary); err != nil {
			p.log.Warn("reconcile issue", "job", done.ID, "issue", event.IssueID, "error", err)
		}
	}
	return len(jobs), nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
