package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remedyhq/remedy/internal/models"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sess := &models.Session{IssueRef: "acme/widgets#7", Status: models.SessionStatusAnalyzing}
	require.NoError(t, m.CreateSession(ctx, sess))
	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.CreatedAt.IsZero())

	got, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets#7", got.IssueRef)
	assert.Equal(t, models.SessionStatusAnalyzing, got.Status)
}

func TestMemoryStore_GetReturnsSnapshot(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sess := &models.Session{IssueRef: "acme/widgets#7", Status: models.SessionStatusAnalyzing}
	require.NoError(t, m.CreateSession(ctx, sess))

	got, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)

	// Mutating the snapshot must not leak into the store.
	got.Status = models.SessionStatusError
	got.Error = "scribbled on"

	again, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusAnalyzing, again.Status)
	assert.Empty(t, again.Error)
}

func TestMemoryStore_Update(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sess := &models.Session{IssueRef: "acme/widgets#7", Status: models.SessionStatusAnalyzing}
	require.NoError(t, m.CreateSession(ctx, sess))

	sess.Status = models.SessionStatusComplete
	sess.Progress = 1.0
	sess.Plan = &models.FixPlan{Version: 1, Steps: []models.PlanStep{{Description: "patch it"}}}
	require.NoError(t, m.UpdateSession(ctx, sess))

	got, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusComplete, got.Status)
	require.NotNil(t, got.Plan)
	assert.Equal(t, 1, got.Plan.Version)
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	m := NewMemoryStore()
	err := m.UpdateSession(context.Background(), &models.Session{ID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_List_NewestFirstWithLimit(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sess := &models.Session{IssueRef: fmt.Sprintf("acme/widgets#%d", i+1)}
		require.NoError(t, m.CreateSession(ctx, sess))
		// CreatedAt granularity is too fine to rely on; space them out.
		sess.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		m.sessions[sess.ID] = sess
	}

	all, err := m.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "acme/widgets#3", all[0].IssueRef)
	assert.Equal(t, "acme/widgets#1", all[2].IssueRef)

	limited, err := m.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStore_Delete(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sess := &models.Session{IssueRef: "acme/widgets#7"}
	require.NoError(t, m.CreateSession(ctx, sess))
	require.NoError(t, m.DeleteSession(ctx, sess.ID))

	_, err := m.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, m.DeleteSession(ctx, sess.ID), ErrNotFound)
}
