package drowsiness

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/landmark"
	"github.com/trezcool/drowsiness/core/metrics"
)

var pongMessage, _ = json.Marshal(map[string]string{"type": landmark.TypePong})

// Ingestor is the sole writer of one session's landmark tables.
type Ingestor struct {
	sessionID string
	ctx       context.Context
	writer    *landmark.TableWriter
	landmarks int
	release   func()
	log       core.Logger

	closeOnce sync.Once
	closeErr  error
}

// OpenIngestor starts landmark ingestion for a session that is not finished yet. Only one
// ingestor may be open per session.
func (svc *Service) OpenIngestor(ctx context.Context, sessionID string) (*Ingestor, error) {
	sess, err := svc.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return nil, core.NewNotFoundError("session not found")
		}
		return nil, core.NewInternalError("could not load session", err)
	}
	if sess.State() == StateFinished {
		return nil, core.NewConflictError("session already finished")
	}

	ingestCtx, release, err := svc.ingestors.Acquire(ctx, sessionID)
	switch {
	case errors.Cause(err) == landmark.ErrSessionFinishing:
		return nil, core.NewConflictError("session is finishing", err)
	case err != nil:
		return nil, core.NewConflictError("landmarks are already streaming for this session", err)
	}
	// a finish may have committed between the state check and Acquire
	if sess, err = svc.sessions.GetSession(ctx, sessionID); err != nil {
		release()
		return nil, core.NewInternalError("could not load session", err)
	}
	if sess.State() == StateFinished {
		release()
		return nil, core.NewConflictError("session already finished")
	}
	writer, err := svc.landmarks.NewWriter(sessionID)
	if err != nil {
		release()
		return nil, core.NewInternalError("could not open landmark tables", err)
	}
	metrics.ActiveIngestors.Inc()
	return &Ingestor{
		sessionID: sessionID,
		ctx:       ingestCtx,
		writer:    writer,
		landmarks: svc.landmarks.Landmarks(),
		release:   release,
		log:       svc.log,
	}, nil
}

// Done is closed when the session is finishing and the ingestor must stop reading.
func (in *Ingestor) Done() <-chan struct{} {
	return in.ctx.Done()
}

// Handle processes one client message and returns the reply to send, if any.
// Malformed messages are logged and dropped; only storage failures are returned.
func (in *Ingestor) Handle(data []byte) ([]byte, error) {
	kind, frame, err := landmark.DecodeMessage(data, in.landmarks)
	if err != nil {
		reason := "malformed"
		if errors.Cause(err) == landmark.ErrLandmarkCount {
			reason = "landmark_count"
		}
		metrics.FramesDropped.WithLabelValues(reason).Inc()
		in.log.Warn("dropping landmark message", "session", in.sessionID, "error", err)
		return nil, nil
	}
	if kind == landmark.TypePing {
		return pongMessage, nil
	}

	if err = in.writer.Append(frame); err != nil {
		return nil, errors.Wrap(err, "writing landmarks")
	}
	metrics.FramesIngested.Inc()
	return nil, nil
}

// FramesWritten returns the number of frames already on disk.
func (in *Ingestor) FramesWritten() int {
	return in.writer.FramesWritten()
}

// Close flushes the buffered frames and releases the session. It is safe to call more than once.
func (in *Ingestor) Close() error {
	in.closeOnce.Do(func() {
		defer func() {
			in.release()
			metrics.ActiveIngestors.Dec()
		}()
		if err := in.writer.Flush(); err != nil {
			in.closeErr = errors.Wrap(err, "flushing landmarks")
			return
		}
		in.log.Debug("landmark ingestor closed", "session", in.sessionID, "frames", in.writer.FramesWritten())
	})
	return in.closeErr
}
