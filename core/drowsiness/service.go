// Package drowsiness runs drowsiness-detection sessions: pairing with the wearable,
// landmark ingestion and the finish workflow that scores a session.
package drowsiness

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/hrv"
	"github.com/trezcool/drowsiness/core/inference"
	"github.com/trezcool/drowsiness/core/landmark"
)

const authCodeSpace = 1000000

type (
	Deps struct {
		Sessions  SessionRepository
		Scores    ScoreRepository
		Realtime  RealtimeStore
		Landmarks *landmark.Store
		Ingestors *landmark.Registry
		Model     *inference.Service
		Events    EventPublisher // optional
		Archiver  Archiver       // optional
		Logger    core.Logger
		Clock     clockwork.Clock
	}

	Service struct {
		conf      core.DrowsinessConfig
		sessions  SessionRepository
		scores    ScoreRepository
		realtime  RealtimeStore
		landmarks *landmark.Store
		ingestors *landmark.Registry
		model     *inference.Service
		analyzer  *hrv.Analyzer
		events    EventPublisher
		archiver  Archiver
		log       core.Logger
		clock     clockwork.Clock
	}
)

func NewService(conf core.DrowsinessConfig, deps Deps) *Service {
	svc := &Service{
		conf:      conf,
		sessions:  deps.Sessions,
		scores:    deps.Scores,
		realtime:  deps.Realtime,
		landmarks: deps.Landmarks,
		ingestors: deps.Ingestors,
		model:     deps.Model,
		events:    deps.Events,
		archiver:  deps.Archiver,
		log:       deps.Logger,
		clock:     deps.Clock,
		analyzer: hrv.NewAnalyzer(hrv.Options{
			SamplingRate:  conf.PPGSamplingRate,
			PeakThreshold: conf.PeakThreshold,
			Alpha:         conf.AnomalyAlpha,
			SegmentLength: conf.SegmentLength(),
		}),
	}
	if svc.landmarks == nil {
		svc.landmarks = landmark.NewStore(conf)
	}
	if svc.ingestors == nil {
		svc.ingestors = landmark.NewRegistry()
	}
	if svc.log == nil {
		svc.log = core.NopLogger{}
	}
	if svc.clock == nil {
		svc.clock = clockwork.NewRealClock()
	}
	return svc
}

// Start creates a session for the student and publishes its pairing record.
func (svc *Service) Start(ctx context.Context, studentUID string, videoID int) (Session, error) {
	sess := Session{
		ID:         uuid.New().String(),
		StudentUID: studentUID,
		VideoID:    videoID,
		CreatedAt:  svc.clock.Now().UTC(),
	}

	code, err := svc.reserveAuthCode(ctx, sess.ID)
	if err != nil {
		return Session{}, err
	}
	sess.AuthCode = code

	if err = svc.sessions.CreateSession(ctx, sess); err != nil {
		svc.releaseAuthCode(code, sess.ID)
		return Session{}, core.NewInternalError("could not create session", err)
	}
	err = svc.realtime.PublishPairing(ctx, Pairing{
		SessionID:  sess.ID,
		StudentUID: studentUID,
		VideoID:    videoID,
		AuthCode:   code,
	})
	if err != nil {
		svc.releaseAuthCode(code, sess.ID)
		return Session{}, core.NewInternalError("could not publish pairing", err)
	}
	return sess, nil
}

// reserveAuthCode draws codes until one is not pending for another session.
func (svc *Service) reserveAuthCode(ctx context.Context, sessionID string) (string, error) {
	attempts := svc.conf.AuthCodeAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		code, err := generateAuthCode()
		if err != nil {
			return "", core.NewInternalError("could not generate auth code", err)
		}
		ok, err := svc.realtime.ReserveAuthCode(ctx, code, sessionID)
		if err != nil {
			return "", core.NewInternalError("could not reserve auth code", err)
		}
		if ok {
			return code, nil
		}
		svc.log.Debug("auth code collision, retrying", "attempt", i+1)
	}
	return "", core.NewInternalError("no free auth code", errors.Errorf("%d attempts", attempts))
}

func (svc *Service) releaseAuthCode(code, sessionID string) {
	if err := svc.realtime.ReleaseAuthCode(context.Background(), code, sessionID); err != nil {
		svc.log.Warn("releasing auth code", "error", err)
	}
}

// generateAuthCode returns 6 zero-padded random digits.
func generateAuthCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(authCodeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Verify pairs the wearable holding code with its session. A code can be used once.
func (svc *Service) Verify(ctx context.Context, code string) (string, error) {
	sessionID, err := svc.realtime.ClaimAuthCode(ctx, code)
	if err != nil {
		if errors.Cause(err) == ErrAuthCodeNotFound {
			return "", core.NewNotFoundError("invalid auth code")
		}
		return "", core.NewInternalError("could not verify auth code", err)
	}
	if err = svc.realtime.SetPaired(ctx, sessionID); err != nil {
		if errors.Cause(err) == ErrPairingNotFound {
			return "", core.NewNotFoundError("session not found")
		}
		return "", core.NewInternalError("could not pair session", err)
	}
	if err = svc.sessions.MarkVerified(ctx, sessionID, svc.clock.Now().UTC()); err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return "", core.NewNotFoundError("session not found")
		}
		return "", core.NewInternalError("could not pair session", err)
	}
	return sessionID, nil
}

// GetSession returns the student's session.
func (svc *Service) GetSession(ctx context.Context, studentUID, sessionID string) (Session, error) {
	sess, err := svc.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return Session{}, core.NewNotFoundError("session not found")
		}
		return Session{}, core.NewInternalError("could not load session", err)
	}
	if sess.StudentUID != studentUID {
		return Session{}, core.NewForbiddenError("session belongs to another student")
	}
	return sess, nil
}

// Levels returns the student's scored levels for a video, in time order.
func (svc *Service) Levels(ctx context.Context, studentUID string, videoID int) ([]Level, error) {
	scores, err := svc.scores.QueryScores(ctx, videoID, studentUID)
	if err != nil {
		return nil, core.NewInternalError("could not load scores", err)
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Timestamp < scores[j].Timestamp })

	levels := make([]Level, 0, len(scores))
	for _, s := range scores {
		levels = append(levels, Level{T: s.Timestamp * 60, Value: s.DrowsinessScore})
	}
	return levels, nil
}

// ClearScores deletes the analysis of a (video, student) pair so that it can be scored again.
func (svc *Service) ClearScores(ctx context.Context, videoID int, studentUID string) (int64, error) {
	n, err := svc.scores.DeleteAnalysis(ctx, videoID, studentUID)
	if err != nil {
		return 0, core.NewInternalError("could not clear scores", err)
	}
	return n, nil
}

// Reshard rebuilds a session's shard blob from its landmark tables.
func (svc *Service) Reshard(sessionID string) (landmark.ShardSet, string, error) {
	set, path, err := svc.landmarks.Shard(sessionID)
	if err != nil {
		if errors.Cause(err) == landmark.ErrNoTables {
			return landmark.ShardSet{}, "", core.NewNotFoundError("no landmark data for session", err)
		}
		return landmark.ShardSet{}, "", core.NewInternalError("could not shard landmarks", err)
	}
	return set, path, nil
}
