package perm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackdesk/triage/internal/models"
	"github.com/hackdesk/triage/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestIssue(t *testing.T, s store.Store, programID string) *models.Issue {
	t.Helper()
	issue := &models.Issue{
		ProgramID: programID,
		Title:     "test issue",
		Status:    models.IssueStatusUnverified,
		Priority:  models.IssuePriorityLow,
		Source:    "slack",
		ThreadKey: "C01:1700000000.000100",
	}
	require.NoError(t, s.CreateIssue(context.Background(), issue))
	return issue
}

func TestLevelOrdering(t *testing.T) {
	assert.True(t, LevelUser < LevelOwner)
	assert.True(t, LevelOwner < LevelProgramOwner)
	assert.True(t, LevelProgramOwner < LevelAdmin)
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, l := range []Level{LevelUser, LevelOwner, LevelProgramOwner, LevelAdmin} {
		assert.Equal(t, l, ParseLevel(l.String()))
	}
	assert.Equal(t, LevelUser, ParseLevel("bogus"))
}

func TestResolve_Default(t *testing.T) {
	s := newTestStore(t)
	r := NewResolver(s, nil)

	level, err := r.Resolve(context.Background(), "U1", "", "")
	require.NoError(t, err)
	assert.Equal(t, LevelUser, level)
}

func TestResolve_AdminList(t *testing.T) {
	s := newTestStore(t)
	r := NewResolver(s, []string{"Uadmin", ""})

	level, err := r.Resolve(context.Background(), "Uadmin", "", "")
	require.NoError(t, err)
	assert.Equal(t, LevelAdmin, level)

	// Empty entries in the config list never match
	level, err = r.Resolve(context.Background(), "", "", "")
	require.NoError(t, err)
	assert.Equal(t, LevelUser, level)
}

func TestResolve_ChannelProgramOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProgram(ctx, &models.Program{
		ProgramID: "hackathon", Name: "Hackathon",
		Owners: []string{"Uprog"}, Channels: []string{"C01"},
	}))

	r := NewResolver(s, nil)
	level, err := r.Resolve(ctx, "Uprog", "C01", "")
	require.NoError(t, err)
	assert.Equal(t, LevelProgramOwner, level)

	// Not an owner of this program
	level, err = r.Resolve(ctx, "Uother", "C01", "")
	require.NoError(t, err)
	assert.Equal(t, LevelUser, level)
}

func TestResolve_IssueLinkedProgramOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	program := &models.Program{ProgramID: "hackathon", Name: "Hackathon", Owners: []string{"Uprog"}}
	require.NoError(t, s.CreateProgram(ctx, program))
	issue := newTestIssue(t, s, program.ID)

	r := NewResolver(s, nil)

	// No channel given, resolution goes through the issue's program link
	level, err := r.Resolve(ctx, "Uprog", "", issue.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelProgramOwner, level)
}

func TestResolve_OwnerSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := newTestIssue(t, s, "")
	require.NoError(t, s.SetIssueOwner(ctx, issue.ID, "Uissue"))
	require.NoError(t, s.SetChannelOwner(ctx, "C01", "Uchan"))

	r := NewResolver(s, nil)

	level, err := r.Resolve(ctx, "Uissue", "", issue.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelOwner, level)

	level, err = r.Resolve(ctx, "Uchan", "C01", "")
	require.NoError(t, err)
	assert.Equal(t, LevelOwner, level)

	// Issue ownership does not leak to other issues
	other := &models.Issue{Title: "other", Status: models.IssueStatusUnverified,
		Priority: models.IssuePriorityLow, Source: "slack"}
	require.NoError(t, s.CreateIssue(ctx, other))
	level, err = r.Resolve(ctx, "Uissue", "", other.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelUser, level)
}

func TestResolve_PriorityOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	program := &models.Program{ProgramID: "hackathon", Name: "Hackathon",
		Owners: []string{"U1"}, Channels: []string{"C01"}}
	require.NoError(t, s.CreateProgram(ctx, program))
	issue := newTestIssue(t, s, program.ID)

	// U1 is simultaneously admin, program owner, and issue owner.
	// The highest tier wins.
	require.NoError(t, s.SetIssueOwner(ctx, issue.ID, "U1"))

	r := NewResolver(s, []string{"U1"})
	level, err := r.Resolve(ctx, "U1", "C01", issue.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelAdmin, level)

	// Without the admin grant, program ownership beats the owner set
	r = NewResolver(s, nil)
	level, err = r.Resolve(ctx, "U1", "C01", issue.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelProgramOwner, level)
}

func TestHasPermission(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := newTestIssue(t, s, "")
	require.NoError(t, s.SetIssueOwner(ctx, issue.ID, "U1"))

	r := NewResolver(s, nil)

	ok, err := r.HasPermission(ctx, "U1", LevelOwner, "", issue.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.HasPermission(ctx, "U1", LevelAdmin, "", issue.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// A level grants everything below it
	ok, err = r.HasPermission(ctx, "U1", LevelUser, "", issue.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRequire(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := newTestIssue(t, s, "")
	r := NewResolver(s, nil)

	err := r.Require(ctx, "U1", LevelOwner, "", issue.ID)
	require.Error(t, err)

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "U1", denied.UserID)
	assert.Equal(t, LevelOwner, denied.Required)
	assert.Equal(t, LevelUser, denied.Actual)
	assert.Contains(t, denied.Error(), "owner")

	require.NoError(t, s.SetIssueOwner(ctx, issue.ID, "U1"))
	assert.NoError(t, r.Require(ctx, "U1", LevelOwner, "", issue.ID))
}
