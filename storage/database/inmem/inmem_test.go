package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/drowsiness/core/drowsiness"
)

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(Open())

	_, err := repo.GetSession(ctx, "nope")
	assert.Equal(t, drowsiness.ErrSessionNotFound, err)
	assert.Equal(t, drowsiness.ErrSessionNotFound, repo.MarkVerified(ctx, "nope", time.Now()))

	require.NoError(t, repo.CreateSession(ctx, drowsiness.Session{ID: "s1", StudentUID: "u1", VideoID: 7}))
	sess, err := repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, drowsiness.StateCreated, sess.State())

	require.NoError(t, repo.MarkVerified(ctx, "s1", time.Now()))
	sess, err = repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, drowsiness.StatePaired, sess.State())
	assert.True(t, sess.VerifiedAt.Valid)
}

func TestScoreRepository(t *testing.T) {
	ctx := context.Background()
	db := Open()
	sessions := NewSessionRepository(db)
	repo := NewScoreRepository(db)
	require.NoError(t, sessions.CreateSession(ctx, drowsiness.Session{ID: "s1", StudentUID: "u1", VideoID: 7}))

	exists, err := repo.AnalysisExists(ctx, 7, "u1")
	require.NoError(t, err)
	assert.False(t, exists)

	a := drowsiness.Analysis{
		VideoID: 7, StudentUID: "u1", SessionID: "s1", FinalScore: 2,
		Scores: []drowsiness.Score{
			{VideoID: 7, StudentUID: "u1", Timestamp: 2, DrowsinessScore: 2},
			{VideoID: 7, StudentUID: "u1", Timestamp: 0, DrowsinessScore: 1},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveAnalysis(ctx, a))
	assert.Equal(t, drowsiness.ErrDuplicateAnalysis, repo.SaveAnalysis(ctx, a))

	sess, err := sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, drowsiness.StateFinished, sess.State())

	scores, err := repo.QueryScores(ctx, 7, "u1")
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 0, scores[0].Timestamp)
	assert.Equal(t, 2, scores[1].Timestamp)

	other, err := repo.QueryScores(ctx, 7, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)

	n, err := repo.DeleteAnalysis(ctx, 7, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	exists, err = repo.AnalysisExists(ctx, 7, "u1")
	require.NoError(t, err)
	assert.False(t, exists)
}
