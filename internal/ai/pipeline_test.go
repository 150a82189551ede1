package ai

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/store"
)

// stubGenerator returns a canned response, or an error when set.
type stubGenerator struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (g *stubGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	g.calls++
	g.lastUser = user
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func newPipelineStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedIssueWithEvent(t *testing.T, s *store.SQLiteStore, body string) (*models.Issue, *models.Event) {
	t.Helper()
	ctx := context.Background()

	issue := &models.Issue{
		Title:     "login page broken",
		Status:    models.IssueStatusUnverified,
		Priority:  models.IssuePriorityLow,
		Source:    "slack",
		ThreadKey: "C01:1700000000.000100",
	}
	require.NoError(t, s.CreateIssue(ctx, issue))

	event := &models.Event{
		IssueID:    issue.ID,
		Source:     "slack",
		ExternalID: "1700000000.000100",
		Author:     "U01",
		Body:       body,
		EventType:  "message",
	}
	require.NoError(t, s.CreateEvent(ctx, event))
	return issue, event
}

func TestExecute_Success(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	_, event := seedIssueWithEvent(t, s, "the login page returns a 500")

	gen := &stubGenerator{response: `{"summary":"login broken","main_issue":"500 on login","urgency":"high"}`}
	p := NewPipeline(s, gen, nil)

	job, err := p.Enqueue(ctx, event.ID, models.AIJobTypeFullExtraction)
	require.NoError(t, err)
	assert.Equal(t, models.AIJobStatusPending, job.Status)

	done := p.Execute(ctx, job)
	assert.Equal(t, models.AIJobStatusCompleted, done.Status)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.lastUser, "[U01]: the login page returns a 500")

	sum := DecodeSummary(done.Output)
	require.NotNil(t, sum)
	assert.Equal(t, "login broken", sum.Summary)
	assert.Equal(t, "500 on login", sum.MainIssue)

	// Summary lands on the anchor event too.
	got, err := s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, done.Output, got.AIMetadata)
}

func TestExecute_TerminalJobIsNoOp(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	_, event := seedIssueWithEvent(t, s, "hello")

	gen := &stubGenerator{response: `{"summary":"s"}`}
	p := NewPipeline(s, gen, nil)

	job, err := p.Enqueue(ctx, event.ID, models.AIJobTypeFullExtraction)
	require.NoError(t, err)

	done := p.Execute(ctx, job)
	require.Equal(t, models.AIJobStatusCompleted, done.Status)
	require.Equal(t, 1, gen.calls)

	// Re-running a completed job does not call the model again.
	again := p.Execute(ctx, done)
	assert.Equal(t, models.AIJobStatusCompleted, again.Status)
	assert.Equal(t, 1, gen.calls)
}

func TestExecute_UnknownJobType(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	_, event := seedIssueWithEvent(t, s, "hello")

	p := NewPipeline(s, &stubGenerator{response: "x"}, nil)

	job, err := p.Enqueue(ctx, event.ID, "sentiment_scan")
	require.NoError(t, err)

	done := p.Execute(ctx, job)
	assert.Equal(t, models.AIJobStatusFailed, done.Status)
	assert.JSONEq(t, `{"error":"unknown job type: sentiment_scan"}`, done.Output)
}

// eventlessStore hides every event, simulating an anchor event deleted
// between enqueue and execution.
type eventlessStore struct {
	*store.SQLiteStore
}

func (s *eventlessStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return nil, fmt.Errorf("event: %w", store.ErrNotFound)
}

func TestExecute_EventGone(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	_, event := seedIssueWithEvent(t, s, "hello")

	p := NewPipeline(&eventlessStore{s}, &stubGenerator{response: "x"}, nil)

	job, err := p.Enqueue(ctx, event.ID, models.AIJobTypeFullExtraction)
	require.NoError(t, err)

	done := p.Execute(ctx, job)
	assert.Equal(t, models.AIJobStatusFailed, done.Status)
	assert.JSONEq(t, `{"error":"Event not found"}`, done.Output)
}

func TestExecute_IssueGone(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	issue, event := seedIssueWithEvent(t, s, "hello")

	p := NewPipeline(s, &stubGenerator{response: "x"}, nil)

	job, err := p.Enqueue(ctx, event.ID, models.AIJobTypeFullExtraction)
	require.NoError(t, err)
	require.NoError(t, s.SoftDeleteIssue(ctx, issue.ID))

	done := p.Execute(ctx, job)
	assert.Equal(t, models.AIJobStatusFailed, done.Status)
	assert.JSONEq(t, `{"error":"Issue not found"}`, done.Output)
}

func TestExecute_GeneratorError(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	_, event := seedIssueWithEvent(t, s, "hello")

	p := NewPipeline(s, &stubGenerator{err: errors.New("upstream timeout")}, nil)

	job, err := p.Enqueue(ctx, event.ID, models.AIJobTypeFullExtraction)
	require.NoError(t, err)

	done := p.Execute(ctx, job)
	assert.Equal(t, models.AIJobStatusFailed, done.Status)
	assert.JSONEq(t, `{"error":"upstream timeout"}`, done.Output)
}

func TestSummarizeThread_NoGenerator(t *testing.T) {
	s := newPipelineStore(t)
	issue, _ := seedIssueWithEvent(t, s, "hello")

	p := NewPipeline(s, nil, nil)

	_, err := p.SummarizeThread(context.Background(), issue.ID)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestSummarizeThread_NoMessages(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()

	issue := &models.Issue{Title: "empty", Status: models.IssueStatusUnverified, Priority: models.IssuePriorityLow, Source: "slack"}
	require.NoError(t, s.CreateIssue(ctx, issue))

	p := NewPipeline(s, &stubGenerator{response: "x"}, nil)

	_, err := p.SummarizeThread(ctx, issue.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no messages found")
}

func TestReconcileIssue(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	issue, _ := seedIssueWithEvent(t, s, "hello")

	p := NewPipeline(s, nil, nil)

	sum := &Summary{
		Summary:     "Login is failing for all users.",
		MainIssue:   "login failure",
		KeyPoints:   []string{"started after deploy", "affects all users"},
		ActionItems: []string{"roll back"},
	}
	got, err := p.ReconcileIssue(ctx, issue.ID, sum)
	require.NoError(t, err)
	assert.Equal(t, "login failure", got.Title)

	want := strings.Join([]string{
		"Login is failing for all users.",
		"\nKey Points:",
		"• started after deploy",
		"• affects all users",
		"\nAction Items:",
		"• roll back",
	}, "\n")
	assert.Equal(t, want, got.Description)

	stored, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Description)
}

func TestReconcileIssue_TruncatesTitle(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	issue, _ := seedIssueWithEvent(t, s, "hello")

	p := NewPipeline(s, nil, nil)

	long := strings.Repeat("é", 250)
	got, err := p.ReconcileIssue(ctx, issue.ID, &Summary{MainIssue: long})
	require.NoError(t, err)
	assert.Equal(t, 200, len([]rune(got.Title)))
	assert.Equal(t, strings.Repeat("é", 200), got.Title)
}

func TestReconcileIssue_EmptySummaryKeepsFields(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	issue, _ := seedIssueWithEvent(t, s, "hello")

	p := NewPipeline(s, nil, nil)

	got, err := p.ReconcileIssue(ctx, issue.ID, &Summary{})
	require.NoError(t, err)
	assert.Equal(t, issue.Title, got.Title)
	assert.Empty(t, got.Description)
}

func TestReconcileIssue_NotFound(t *testing.T) {
	s := newPipelineStore(t)
	p := NewPipeline(s, nil, nil)

	_, err := p.ReconcileIssue(context.Background(), "missing", &Summary{Summary: "s"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessPending(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	issue, event := seedIssueWithEvent(t, s, "checkout is down")

	gen := &stubGenerator{response: `{"summary":"checkout outage","main_issue":"checkout down","key_points":["payments failing"]}`}
	p := NewPipeline(s, gen, nil)

	_, err := p.Enqueue(ctx, event.ID, models.AIJobTypeFullExtraction)
	require.NoError(t, err)

	n, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Job completed and the issue was reconciled from the summary.
	pending, err := p.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "checkout down", got.Title)
	assert.Contains(t, got.Description, "Key Points:")
	assert.Contains(t, got.Description, "• payments failing")
}

func TestProcessPending_FailureDoesNotStopDrain(t *testing.T) {
	s := newPipelineStore(t)
	ctx := context.Background()
	_, event := seedIssueWithEvent(t, s, "hello")

	gen := &stubGenerator{response: `{"summary":"ok"}`}
	p := NewPipeline(s, gen, nil)

	bad, err := p.Enqueue(ctx, event.ID, "bogus_type")
	require.NoError(t, err)
	good, err := p.Enqueue(ctx, event.ID, models.AIJobTypeFullExtraction)
	require.NoError(t, err)

	n, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	badJob, err := s.GetAIJob(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AIJobStatusFailed, badJob.Status)

	goodJob, err := s.GetAIJob(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AIJobStatusCompleted, goodJob.Status)
}
