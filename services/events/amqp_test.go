package eventsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
)

func TestEncode(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	body, err := encode(EventSessionScored, at, drowsiness.ScoredEvent{
		SessionID: "s1", VideoID: 7, StudentUID: "u1", FinalScore: 2.5, Segments: 3,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "drowsiness.session.scored",
		"occurred_at": "2024-03-01T09:00:00Z",
		"data": {"session_id": "s1", "video_id": 7, "student_uid": "u1", "final_score": 2.5, "segments": 3}
	}`, string(body))
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.PublishScored(context.Background(), drowsiness.ScoredEvent{}))
	assert.NoError(t, NopPublisher{Log: core.NopLogger{}}.PublishScored(context.Background(), drowsiness.ScoredEvent{}))
}
