package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func TestThreadKey(t *testing.T) {
	assert.Equal(t, "C01:1700000000.000100", ThreadKey("C01", "1700000000.000100"))
}

func TestCreate_NewIssue(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	result, err := r.Create(ctx, "C01", "1700000000.000100", "login broken", "", "slack")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "login broken", result.Issue.Title)
	assert.Equal(t, models.IssueStatusUnverified, result.Issue.Status)
	assert.Equal(t, models.IssuePriorityLow, result.Issue.Priority)
	assert.Equal(t, "C01:1700000000.000100", result.Issue.ThreadKey)
}

func TestCreate_DefaultTitle(t *testing.T) {
	r, _ := newTestRegistry(t)

	result, err := r.Create(context.Background(), "C01", "1700000000.000100", "", "", "slack")
	require.NoError(t, err)
	assert.Equal(t, "Issue from thread 1700000000.000100", result.Issue.Title)
}

func TestCreate_DuplicateReturnsExisting(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.Create(ctx, "C01", "1700000000.000100", "login broken", "", "slack")
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := r.Create(ctx, "C01", "1700000000.000100", "different title", "", "slack")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Issue.ID, second.Issue.ID)
	assert.Equal(t, "login broken", second.Issue.Title)
}

func TestCreate_LinksChannelProgram(t *testing.T) {
	r, s := newTestRegistry(t)
	ctx := context.Background()

	program := &models.Program{ProgramID: "hackathon", Name: "Hackathon", Channels: []string{"C01"}}
	require.NoError(t, s.CreateProgram(ctx, program))

	result, err := r.Create(ctx, "C01", "1700000000.000100", "help", "", "slack")
	require.NoError(t, err)
	assert.Equal(t, program.ID, result.Issue.ProgramID)

	// Channels outside any program get no link
	other, err := r.Create(ctx, "C99", "1700000000.000200", "help", "", "slack")
	require.NoError(t, err)
	assert.Empty(t, other.Issue.ProgramID)
}

func TestResolve_CompositeKey(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Create(ctx, "C01", "1700000000.000100", "login broken", "", "slack")
	require.NoError(t, err)

	issue, err := r.Resolve(ctx, "C01", "1700000000.000100")
	require.NoError(t, err)
	assert.Equal(t, created.Issue.ID, issue.ID)
}

func TestResolve_SuffixWithoutChannel(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Create(ctx, "C01", "1700000000.000100", "login broken", "", "slack")
	require.NoError(t, err)

	// Lookup without channel info falls back to the bare timestamp
	issue, err := r.Resolve(ctx, "", "1700000000.000100")
	require.NoError(t, err)
	assert.Equal(t, created.Issue.ID, issue.ID)
}

func TestResolve_LegacyBareKey(t *testing.T) {
	r, s := newTestRegistry(t)
	ctx := context.Background()

	// Rows from before composite keys hold just the thread timestamp
	legacy := &models.Issue{
		Title:     "old issue",
		Status:    models.IssueStatusUnverified,
		Priority:  models.IssuePriorityLow,
		Source:    "slack",
		ThreadKey: "1700000000.000100",
	}
	require.NoError(t, s.CreateIssue(ctx, legacy))

	issue, err := r.Resolve(ctx, "C01", "1700000000.000100")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, issue.ID)
}

func TestResolve_NotFound(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Resolve(context.Background(), "C01", "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolve_IgnoresSoftDeleted(t *testing.T) {
	r, s := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Create(ctx, "C01", "1700000000.000100", "login broken", "", "slack")
	require.NoError(t, err)
	require.NoError(t, s.SoftDeleteIssue(ctx, created.Issue.ID))

	_, err = r.Resolve(ctx, "C01", "1700000000.000100")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLinkProgram(t *testing.T) {
	r, s := newTestRegistry(t)
	ctx := context.Background()

	program := &models.Program{ProgramID: "hackathon", Name: "Hackathon"}
	require.NoError(t, s.CreateProgram(ctx, program))

	created, err := r.Create(ctx, "C01", "1700000000.000100", "login broken", "", "slack")
	require.NoError(t, err)
	require.Empty(t, created.Issue.ProgramID)

	issue, err := r.LinkProgram(ctx, created.Issue.ID, program.ID)
	require.NoError(t, err)
	assert.Equal(t, program.ID, issue.ProgramID)

	_, err = r.LinkProgram(ctx, created.Issue.ID, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
