package drowsiness

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core/hrv"
)

var (
	// errors
	ErrSessionNotFound   = errors.New("session not found")
	ErrAuthCodeNotFound  = errors.New("auth code not found")
	ErrPairingNotFound   = errors.New("pairing not found")
	ErrDuplicateAnalysis = errors.New("an analysis already exists for this video and student")
)

type (
	SessionRepository interface {
		CreateSession(ctx context.Context, sess Session) error
		// GetSession returns ErrSessionNotFound when there is no such session.
		GetSession(ctx context.Context, id string) (Session, error)
		MarkVerified(ctx context.Context, id string, at time.Time) error
	}

	ScoreRepository interface {
		AnalysisExists(ctx context.Context, videoID int, studentUID string) (bool, error)
		// SaveAnalysis inserts the analysis and its scores and marks the session finished, atomically.
		// It returns ErrDuplicateAnalysis when the (video, student) pair was already scored.
		SaveAnalysis(ctx context.Context, a Analysis) error
		QueryScores(ctx context.Context, videoID int, studentUID string) ([]Score, error)
		DeleteAnalysis(ctx context.Context, videoID int, studentUID string) (int64, error)
	}

	// RealtimeStore is the key-value store shared with the wearable.
	RealtimeStore interface {
		// ReserveAuthCode maps code to the session unless the code is already pending.
		ReserveAuthCode(ctx context.Context, code, sessionID string) (bool, error)
		// ClaimAuthCode removes the code and returns its session, or ErrAuthCodeNotFound.
		ClaimAuthCode(ctx context.Context, code string) (string, error)
		// ReleaseAuthCode removes code only while it still maps to sessionID.
		ReleaseAuthCode(ctx context.Context, code, sessionID string) error

		PublishPairing(ctx context.Context, p Pairing) error
		// GetPairing returns ErrPairingNotFound when the session namespace is gone.
		GetPairing(ctx context.Context, sessionID string) (Pairing, error)
		SetPaired(ctx context.Context, sessionID string) error
		SetStop(ctx context.Context, sessionID string) error

		AppendPPGSamples(ctx context.Context, sessionID string, samples ...hrv.Sample) error
		CountPPGSamples(ctx context.Context, sessionID string) (int64, error)
		PPGSamples(ctx context.Context, sessionID string) ([]hrv.Sample, error)

		DeleteSession(ctx context.Context, sessionID string) error
	}

	EventPublisher interface {
		PublishScored(ctx context.Context, ev ScoredEvent) error
	}

	// Archiver keeps a copy of a session's artifacts.
	Archiver interface {
		Archive(ctx context.Context, sessionID string, paths ...string) error
	}
)
