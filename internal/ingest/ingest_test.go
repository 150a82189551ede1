package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackdesk/triage/internal/ai"
	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/registry"
	"github.com/hackdesk/triage/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	reg := registry.New(s)
	pipe := ai.NewPipeline(s, nil, nil)
	return New(s, reg, pipe, "slack", nil), s
}

func threadMsgs() []Message {
	return []Message{
		{Author: "U01", Body: "the login page is broken", ExternalID: "1700000000.000100"},
		{Author: "U02", Body: "seeing the same thing", ExternalID: "1700000000.000200"},
		{Author: "U01", Body: "started after the deploy", ExternalID: "1700000000.000300"},
	}
}

func TestIngestThread(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	result, err := svc.IngestThread(ctx, "C01", "1700000000.000100", threadMsgs(), "U99")
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, 3, result.EventCount)
	assert.Equal(t, "the login page is broken", result.Issue.Title)
	assert.Equal(t, "C01:1700000000.000100", result.Issue.ThreadKey)
	assert.Equal(t, models.IssueStatusUnverified, result.Issue.Status)

	events, err := s.ListIssueEvents(ctx, result.Issue.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "U01", events[0].Author)
	assert.Equal(t, "1700000000.000100", events[0].ExternalID)

	// One summarization job anchored on the first message.
	require.NotNil(t, result.Job)
	assert.Equal(t, events[0].ID, result.Job.EventID)
	assert.Equal(t, models.AIJobTypeFullExtraction, result.Job.JobType)
	assert.Equal(t, models.AIJobStatusPending, result.Job.Status)
}

func TestIngestThread_Participants(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	result, err := svc.IngestThread(ctx, "C01", "1700000000.000100", threadMsgs(), "U99")
	require.NoError(t, err)

	// Requester plus two distinct authors; U01's second message does
	// not add a duplicate.
	assert.Equal(t, 3, result.Participants)

	participants, err := s.ListParticipants(ctx, result.Issue.ID)
	require.NoError(t, err)
	roles := map[string]string{}
	for _, p := range participants {
		roles[p.UserID] = p.Role
	}
	assert.Equal(t, models.ParticipantRoleRequester, roles["U99"])
	assert.Equal(t, models.ParticipantRoleWatcher, roles["U01"])
	assert.Equal(t, models.ParticipantRoleWatcher, roles["U02"])
}

func TestIngestThread_RequesterAlsoAuthor(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	msgs := []Message{{Author: "U01", Body: "help", ExternalID: "1.1"}}
	result, err := svc.IngestThread(ctx, "C01", "1.1", msgs, "U01")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Participants)

	participants, err := s.ListParticipants(ctx, result.Issue.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, models.ParticipantRoleRequester, participants[0].Role)
}

func TestIngestThread_Duplicate(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	first, err := svc.IngestThread(ctx, "C01", "1700000000.000100", threadMsgs(), "U99")
	require.NoError(t, err)

	second, err := svc.IngestThread(ctx, "C01", "1700000000.000100", threadMsgs(), "U50")
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Issue.ID, second.Issue.ID)
	assert.Zero(t, second.EventCount)
	assert.Nil(t, second.Job)

	// No duplicated events or jobs.
	events, err := s.ListIssueEvents(ctx, first.Issue.ID)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	pending, err := s.ListPendingAIJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestIngestThread_LongTitle(t *testing.T) {
	svc, _ := newTestService(t)

	long := strings.Repeat("a", 150)
	msgs := []Message{{Author: "U01", Body: long, ExternalID: "1.1"}}
	result, err := svc.IngestThread(context.Background(), "C01", "1.1", msgs, "U01")
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("a", 100)+"...", result.Issue.Title)
}

func TestIngestThread_NoMessages(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.IngestThread(context.Background(), "C01", "1.1", nil, "U01")
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, "Untitled Issue", result.Issue.Title)
	assert.Zero(t, result.EventCount)
	assert.Nil(t, result.Job, "no anchor event means no job")
}

func TestIngestThread_EmptyAuthor(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	msgs := []Message{{Author: "", Body: "anonymous report", ExternalID: "1.1"}}
	result, err := svc.IngestThread(ctx, "C01", "1.1", msgs, "U01")
	require.NoError(t, err)

	events, err := s.ListIssueEvents(ctx, result.Issue.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "unknown", events[0].Author)
}

func TestAppendMessage(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	result, err := svc.IngestThread(ctx, "C01", "1700000000.000100", threadMsgs(), "U99")
	require.NoError(t, err)

	event, err := svc.AppendMessage(ctx, "C01", "1700000000.000100", Message{
		Author:         "U03",
		Body:           "fix is rolling out",
		ExternalID:     "1700000000.000400",
		AttachmentURLs: []string{"https://files.example.com/a.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, result.Issue.ID, event.IssueID)

	events, err := s.ListIssueEvents(ctx, result.Issue.ID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "fix is rolling out", events[3].Body)
	assert.Equal(t, []string{"https://files.example.com/a.png"}, events[3].Attachments)
}

func TestAppendMessage_UntrackedThread(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AppendMessage(context.Background(), "C01", "1700000000.000100", Message{
		Author: "U01", Body: "hi", ExternalID: "1.1",
	})
	require.Error(t, err)
	assert.True(t, IsNotTracked(err))
}
