package drowsiness

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/dataset"
	"github.com/trezcool/drowsiness/core/hrv"
	"github.com/trezcool/drowsiness/core/inference"
	"github.com/trezcool/drowsiness/core/metrics"
	"github.com/trezcool/drowsiness/core/quiescence"
)

const (
	hrvTableName      = "hrv_features.csv"
	afterCommitBudget = 30 * time.Second
)

// Finish stops the session, waits for both streams to settle, scores every HRV segment
// against its landmark window and commits the scores. It runs to completion or until ctx is done.
func (svc *Service) Finish(ctx context.Context, studentUID, sessionID string) (FinishResult, error) {
	start := svc.clock.Now()
	res, err := svc.finish(ctx, studentUID, sessionID)
	metrics.FinishDuration.Observe(svc.clock.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = core.KindOf(err).String()
		svc.log.Warn("finish failed", "session", sessionID, "error", err)
	}
	metrics.FinishOutcomes.WithLabelValues(outcome).Inc()
	return res, err
}

func (svc *Service) finish(ctx context.Context, studentUID, sessionID string) (FinishResult, error) {
	sess, err := svc.GetSession(ctx, studentUID, sessionID)
	if err != nil {
		return FinishResult{}, err
	}
	if sess.State() == StateFinished {
		return FinishResult{}, core.NewConflictError("session already finished")
	}
	exists, err := svc.scores.AnalysisExists(ctx, sess.VideoID, sess.StudentUID)
	if err != nil {
		return FinishResult{}, core.NewInternalError("could not check previous analysis", err)
	}
	if exists {
		return FinishResult{}, core.NewConflictError("drowsiness was already analysed for this video", ErrDuplicateAnalysis)
	}

	resume := svc.ingestors.Hold(sess.ID)
	defer resume()
	if err = svc.stop(ctx, sess); err != nil {
		return FinishResult{}, err
	}

	table, hrvPath, err := svc.computeHRV(ctx, sess.ID)
	if err != nil {
		return FinishResult{}, err
	}

	if err = svc.waitForLandmarks(ctx, sess.ID); err != nil {
		return FinishResult{}, err
	}
	set, blobPath, err := svc.Reshard(sess.ID)
	if err != nil {
		return FinishResult{}, err
	}
	seq, err := dataset.New(set, svc.conf.SeqLen, svc.conf.Stride)
	if err != nil {
		return FinishResult{}, core.NewInternalError("invalid dataset settings", err)
	}
	if seq.Len() == 0 {
		return FinishResult{}, core.NewBadRequestError("insufficient viewing time",
			errors.Errorf("%d shards, need %d", len(set.Shards), svc.conf.SeqLen))
	}

	scores, err := svc.score(ctx, sess, seq, table)
	if err != nil {
		return FinishResult{}, err
	}

	analysis := Analysis{
		VideoID:    sess.VideoID,
		StudentUID: sess.StudentUID,
		SessionID:  sess.ID,
		FinalScore: scores[len(scores)-1].DrowsinessScore,
		Scores:     scores,
		CreatedAt:  svc.clock.Now().UTC(),
	}
	if err = svc.scores.SaveAnalysis(ctx, analysis); err != nil {
		if errors.Cause(err) == ErrDuplicateAnalysis {
			return FinishResult{}, core.NewConflictError("drowsiness was already analysed for this video", err)
		}
		return FinishResult{}, core.NewInternalError("could not save scores", err)
	}
	metrics.ScoresCommitted.Add(float64(len(scores)))
	svc.afterCommit(sess, analysis, blobPath, hrvPath)

	return FinishResult{
		SessionID: sess.ID,
		Prediction: Prediction{
			DrowsinessLevel: analysis.FinalScore,
			Segments:        len(table.Rows),
			Windows:         seq.Len(),
		},
		Scores: scores,
	}, nil
}

// stop raises the stop flag for the wearable, retires its auth code and closes the
// landmark ingestor, if any.
func (svc *Service) stop(ctx context.Context, sess Session) error {
	if err := svc.realtime.SetStop(ctx, sess.ID); err != nil {
		if errors.Cause(err) != ErrPairingNotFound {
			return core.NewInternalError("could not stop session", err)
		}
		svc.log.Warn("no pairing record to stop", "session", sess.ID)
	}
	if sess.AuthCode != "" {
		svc.releaseAuthCode(sess.AuthCode, sess.ID)
	}
	if err := svc.ingestors.Close(ctx, sess.ID); err != nil {
		return core.NewInternalError("could not stop landmark ingestion", err)
	}
	return nil
}

func (svc *Service) computeHRV(ctx context.Context, sessionID string) (hrv.Table, string, error) {
	count := func(ctx context.Context) (int64, error) {
		return svc.realtime.CountPPGSamples(ctx, sessionID)
	}
	opts := quiescence.Options{
		Interval:  svc.conf.PPGPollInterval,
		StableFor: svc.conf.PPGStableFor,
		Timeout:   svc.conf.PPGTimeout,
	}
	if err := svc.waitFor(ctx, "ppg", sessionID, quiescence.CountProbe(count), opts); err != nil {
		return hrv.Table{}, "", err
	}

	samples, err := svc.realtime.PPGSamples(ctx, sessionID)
	if err != nil {
		return hrv.Table{}, "", core.NewInternalError("could not load PPG data", err)
	}
	table, err := svc.analyzer.Analyze(samples)
	if err != nil {
		if errors.Cause(err) == hrv.ErrInsufficientData {
			return hrv.Table{}, "", core.NewBadRequestError("insufficient PPG data", err)
		}
		return hrv.Table{}, "", core.NewInternalError("could not compute HRV features", err)
	}
	if err = svc.model.CheckFeatures(table.FeatureCount()); err != nil {
		return hrv.Table{}, "", err
	}

	path, err := svc.saveHRVTable(sessionID, table)
	if err != nil {
		return hrv.Table{}, "", core.NewInternalError("could not save HRV features", err)
	}
	return table, path, nil
}

func (svc *Service) saveHRVTable(sessionID string, table hrv.Table) (path string, err error) {
	dir := svc.landmarks.SessionDir(sessionID)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path = filepath.Join(dir, hrvTableName)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return path, table.WriteCSV(f)
}

func (svc *Service) waitForLandmarks(ctx context.Context, sessionID string) error {
	tables, err := svc.landmarks.Tables(sessionID)
	if err != nil {
		return core.NewInternalError("could not list landmark tables", err)
	}
	if len(tables) == 0 {
		return core.NewNotFoundError("no landmark data for session")
	}
	latest := func(context.Context) (time.Time, error) {
		return svc.landmarks.LatestModTime(sessionID)
	}
	opts := quiescence.Options{
		Interval:  svc.conf.LandmarkPollInterval,
		StableFor: svc.conf.LandmarkStableFor,
		Timeout:   svc.conf.LandmarkTimeout,
	}
	return svc.waitFor(ctx, "landmarks", sessionID, quiescence.ModTimeProbe(latest), opts)
}

func (svc *Service) waitFor(ctx context.Context, stream, sessionID string, probe quiescence.Probe, opts quiescence.Options) error {
	opts.Clock = svc.clock
	res, err := quiescence.Wait(ctx, probe, opts)
	switch {
	case err == nil:
		metrics.QuiescenceWaits.WithLabelValues(stream, "settled").Inc()
		svc.log.Debug("stream settled", "session", sessionID, "stream", stream, "polls", res.Polls, "waited", res.Waited)
		return nil
	case errors.Cause(err) == quiescence.ErrTimeout:
		metrics.QuiescenceWaits.WithLabelValues(stream, "timeout").Inc()
		return core.NewTimeoutError(stream+" stream did not settle in time", err)
	case ctx.Err() != nil:
		metrics.QuiescenceWaits.WithLabelValues(stream, "cancelled").Inc()
		return core.NewInternalError("finish cancelled", err)
	default:
		metrics.QuiescenceWaits.WithLabelValues(stream, "error").Inc()
		return core.NewInternalError("could not poll "+stream+" stream", err)
	}
}

// score runs the model on every HRV segment that has a matching landmark window.
func (svc *Service) score(ctx context.Context, sess Session, seq *dataset.Sequence, table hrv.Table) ([]Score, error) {
	set := seq.ShardSet()
	scores := make([]Score, 0, len(table.Rows))
	for _, row := range table.Rows {
		if row.Segment >= seq.Len() {
			break
		}
		face := inference.FaceTensor(seq.At(row.Segment), set.FramesPerShard, set.Landmarks)
		value, err := svc.model.Predict(ctx, face, inference.HRVTensor(row.Values, seq.SeqLen()))
		if err != nil {
			return nil, err
		}
		scores = append(scores, Score{
			VideoID:         sess.VideoID,
			StudentUID:      sess.StudentUID,
			Timestamp:       row.Segment * svc.conf.SegmentMinutes,
			DrowsinessScore: value,
		})
	}
	if len(scores) == 0 {
		return nil, core.NewBadRequestError("insufficient viewing time",
			errors.Errorf("no HRV segment within the %d landmark windows", seq.Len()))
	}
	return scores, nil
}

// afterCommit publishes the result and cleans the real-time namespace. Failures are only logged.
func (svc *Service) afterCommit(sess Session, a Analysis, artifacts ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), afterCommitBudget)
	defer cancel()

	if svc.events != nil {
		ev := ScoredEvent{
			SessionID:  sess.ID,
			VideoID:    sess.VideoID,
			StudentUID: sess.StudentUID,
			FinalScore: a.FinalScore,
			Segments:   len(a.Scores),
		}
		if err := svc.events.PublishScored(ctx, ev); err != nil {
			svc.log.Error("publishing scored event", "session", sess.ID, "error", err)
		}
	}
	if svc.archiver != nil {
		if err := svc.archiver.Archive(ctx, sess.ID, artifacts...); err != nil {
			svc.log.Error("archiving session artifacts", "session", sess.ID, "error", err)
		}
	}
	if err := svc.realtime.DeleteSession(ctx, sess.ID); err != nil {
		svc.log.Warn("deleting realtime session", "session", sess.ID, "error", err)
	}
}
