package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remedyhq/remedy/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "remedy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{IssueRef: "acme/widgets#7", Status: models.SessionStatusAnalyzing}
	require.NoError(t, s.CreateSession(ctx, sess))
	require.NotEmpty(t, sess.ID)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets#7", got.IssueRef)
	assert.Equal(t, models.SessionStatusAnalyzing, got.Status)
	assert.Nil(t, got.Overview)
	assert.Nil(t, got.Plan)
	assert.Nil(t, got.GatewayUp)
	assert.Empty(t, got.Fixes)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpdateRoundTripsStructuredFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{IssueRef: "acme/widgets#7", Status: models.SessionStatusAnalyzing}
	require.NoError(t, s.CreateSession(ctx, sess))

	up := false
	now := time.Now().UTC().Truncate(time.Second)
	sess.Status = models.SessionStatusComplete
	sess.Progress = 1.0
	sess.GatewayUp = &up
	sess.Overview = &models.SystemOverview{
		Summary:      "a small CLI",
		Architecture: models.Architecture{Kind: "cli"},
		KeyFiles:     []models.KeyFile{{Path: "main.go", Purpose: "entry point"}},
		TestResults:  models.TestResults{Success: false, FailedTests: []string{"TestParse"}},
	}
	sess.Plan = &models.FixPlan{
		Version:   2,
		Steps:     []models.PlanStep{{Description: "patch the parser", EstimatedImpact: "low"}},
		Questions: []models.Question{{ID: "q1", Text: "which flag?", Type: models.QuestionTypeChoice, Options: []string{"-a", "-b"}}},
	}
	sess.Fixes = []models.Fix{{Path: "main.go", Description: "guard nil", Diff: "--- a/main.go\n+++ b/main.go\n"}}
	sess.PRDraft = &models.PRDraft{Title: "Fix parser", Branch: "fix/parser"}
	sess.CompletedAt = &now
	require.NoError(t, s.UpdateSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusComplete, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	require.NotNil(t, got.GatewayUp)
	assert.False(t, *got.GatewayUp)
	require.NotNil(t, got.Overview)
	assert.Equal(t, "a small CLI", got.Overview.Summary)
	assert.Equal(t, []string{"TestParse"}, got.Overview.TestResults.FailedTests)
	require.NotNil(t, got.Plan)
	assert.Equal(t, 2, got.Plan.Version)
	require.Len(t, got.Plan.Questions, 1)
	assert.Equal(t, models.QuestionTypeChoice, got.Plan.Questions[0].Type)
	require.Len(t, got.Fixes, 1)
	assert.Equal(t, "main.go", got.Fixes[0].Path)
	require.NotNil(t, got.PRDraft)
	assert.Equal(t, "fix/parser", got.PRDraft.Branch)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLiteStore_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateSession(context.Background(), &models.Session{ID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		sess := &models.Session{IssueRef: "acme/widgets#1", Status: models.SessionStatusAnalyzing}
		require.NoError(t, s.CreateSession(ctx, sess))
		ids = append(ids, sess.ID)
		time.Sleep(5 * time.Millisecond) // distinct created_at ordering
	}

	all, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	limited, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{IssueRef: "acme/widgets#7"}
	require.NoError(t, s.CreateSession(ctx, sess))
	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	_, err := s.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSession(ctx, sess.ID), ErrNotFound)
}
