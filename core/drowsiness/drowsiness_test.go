package drowsiness_test

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
	"github.com/trezcool/drowsiness/core/inference"
	"github.com/trezcool/drowsiness/core/landmark"
	"github.com/trezcool/drowsiness/core/metrics"
	realtimesvc "github.com/trezcool/drowsiness/services/realtime"
	inmemdb "github.com/trezcool/drowsiness/storage/database/inmem"
	testutil "github.com/trezcool/drowsiness/tests"
)

const (
	studentUID = "student-1"
	videoID    = 7
)

type stubModel struct {
	mu    sync.Mutex
	calls int
}

func (m *stubModel) Predict(context.Context, inference.Tensor, inference.Tensor) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return 2.5, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []drowsiness.ScoredEvent
}

func (r *eventRecorder) PublishScored(_ context.Context, ev drowsiness.ScoredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type archiveRecorder struct {
	paths []string
}

func (r *archiveRecorder) Archive(_ context.Context, _ string, paths ...string) error {
	r.paths = append(r.paths, paths...)
	return nil
}

type fixture struct {
	conf     core.DrowsinessConfig
	svc      *drowsiness.Service
	sessions drowsiness.SessionRepository
	scores   drowsiness.ScoreRepository
	realtime *realtimesvc.Inmem
	store    *landmark.Store
	model    *stubModel
	events   *eventRecorder
	archive  *archiveRecorder
}

func newFixture(t *testing.T, rt ...drowsiness.RealtimeStore) *fixture {
	t.Helper()
	conf := core.NewTestConfig().Drowsiness
	conf.DataDir = t.TempDir()
	conf.LandmarkCount = 2
	conf.ChunkSize = 160
	conf.ChunksPerFile = 10
	conf.PPGTimeout = 200 * time.Millisecond
	conf.LandmarkTimeout = 500 * time.Millisecond

	db := inmemdb.Open()
	f := &fixture{
		conf:     conf,
		sessions: inmemdb.NewSessionRepository(db),
		scores:   inmemdb.NewScoreRepository(db),
		realtime: realtimesvc.NewInmem(time.Hour),
		store:    landmark.NewStore(conf),
		model:    &stubModel{},
		events:   &eventRecorder{},
		archive:  &archiveRecorder{},
	}
	var store drowsiness.RealtimeStore = f.realtime
	if len(rt) > 0 {
		store = rt[0]
	}
	f.svc = drowsiness.NewService(conf, drowsiness.Deps{
		Sessions:  f.sessions,
		Scores:    f.scores,
		Realtime:  store,
		Landmarks: f.store,
		Model:     inference.NewService(f.model, inference.ShapeFromConfig(conf), nil),
		Events:    f.events,
		Archiver:  f.archive,
	})
	return f
}

func wantKind(t *testing.T, err error, kind core.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %v", kind)
	}
	if got := core.KindOf(err); got != kind {
		t.Errorf("error = %v (%v), want %v", err, got, kind)
	}
}

func TestService_StartAndVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.svc.Start(ctx, studentUID, videoID)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), sess.AuthCode)
	assert.Equal(t, drowsiness.StateCreated, sess.State())

	p, err := f.realtime.GetPairing(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.AuthCode, p.AuthCode)
	assert.False(t, p.Paired)

	id, err := f.svc.Verify(ctx, sess.AuthCode)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, id)

	got, err := f.svc.GetSession(ctx, studentUID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, drowsiness.StatePaired, got.State())
	p, err = f.realtime.GetPairing(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, p.Paired)

	// single use
	_, err = f.svc.Verify(ctx, sess.AuthCode)
	wantKind(t, err, core.KindNotFound)
}

func TestService_GetSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, false)

	_, err := f.svc.GetSession(ctx, studentUID, "nope")
	wantKind(t, err, core.KindNotFound)
	_, err = f.svc.GetSession(ctx, "someone-else", "s1")
	wantKind(t, err, core.KindForbidden)
}

type collidingStore struct {
	*realtimesvc.Inmem
	reservations int
}

func (s *collidingStore) ReserveAuthCode(context.Context, string, string) (bool, error) {
	s.reservations++
	return false, nil
}

func TestService_Start_noFreeAuthCode(t *testing.T) {
	store := &collidingStore{Inmem: realtimesvc.NewInmem(time.Hour)}
	f := newFixture(t, store)

	_, err := f.svc.Start(context.Background(), studentUID, videoID)
	wantKind(t, err, core.KindInternal)
	assert.Equal(t, f.conf.AuthCodeAttempts, store.reservations)
}

func TestIngestor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)

	_, err := f.svc.OpenIngestor(ctx, "nope")
	wantKind(t, err, core.KindNotFound)

	in, err := f.svc.OpenIngestor(ctx, "s1")
	require.NoError(t, err)

	_, err = f.svc.OpenIngestor(ctx, "s1")
	wantKind(t, err, core.KindConflict)

	reply, err := in.Handle([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(reply))

	for _, msg := range []string{`not json`, `{"type":"frame","landmarks":[[1,2,3]]}`, `{"type":"wave"}`} {
		reply, err = in.Handle([]byte(msg))
		assert.NoError(t, err, msg)
		assert.Nil(t, reply, msg)
	}
	for i := 0; i < 5; i++ {
		_, err = in.Handle(testutil.FrameMessage(t, i, f.conf.LandmarkCount))
		require.NoError(t, err)
	}
	assert.Zero(t, in.FramesWritten(), "frames stay buffered until a chunk is full")

	require.NoError(t, in.Close())
	require.NoError(t, in.Close())
	assert.Equal(t, 5, in.FramesWritten())

	// the session is free again
	in, err = f.svc.OpenIngestor(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, in.Close())
}

// stream sends frames through an ingestor that stays open until finish closes it.
func stream(t *testing.T, f *fixture, sessionID string, frames int) <-chan error {
	t.Helper()
	in, err := f.svc.OpenIngestor(context.Background(), sessionID)
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		_, err = in.Handle(testutil.FrameMessage(t, i, f.conf.LandmarkCount))
		require.NoError(t, err)
	}
	closed := make(chan error, 1)
	go func() {
		<-in.Done()
		closed <- in.Close()
	}()
	return closed
}

func TestService_Finish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.svc.Start(ctx, studentUID, videoID)
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, sess.AuthCode)
	require.NoError(t, err)

	// 3 minutes at 30fps, the last partial chunk is only flushed when finish closes the stream
	closed := stream(t, f, sess.ID, 5400)
	testutil.AppendPPG(t, f.realtime, sess.ID, testutil.PPG(time.Now().UTC(), 100, 25))

	res, err := f.svc.Finish(ctx, studentUID, sess.ID)
	require.NoError(t, err)
	require.NoError(t, <-closed)

	assert.Equal(t, sess.ID, res.SessionID)
	assert.Equal(t, drowsiness.Prediction{DrowsinessLevel: 2.5, Segments: 1, Windows: 1}, res.Prediction)
	require.Len(t, res.Scores, 1)
	assert.Equal(t, 0, res.Scores[0].Timestamp)
	assert.Equal(t, 1, f.model.calls)

	set, err := landmark.LoadShards(landmark.BlobPath(f.store.SessionDir(sess.ID), sess.ID))
	require.NoError(t, err)
	assert.Len(t, set.Shards, 36)
	assert.Equal(t, 5400, set.Frames)
	_, err = os.Stat(filepath.Join(f.store.SessionDir(sess.ID), "hrv_features.csv"))
	assert.NoError(t, err)
	assert.Len(t, f.archive.paths, 2)

	levels, err := f.svc.Levels(ctx, studentUID, videoID)
	require.NoError(t, err)
	assert.Equal(t, []drowsiness.Level{{T: 0, Value: 2.5}}, levels)

	got, err := f.svc.GetSession(ctx, studentUID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, drowsiness.StateFinished, got.State())

	require.Len(t, f.events.events, 1)
	assert.Equal(t, drowsiness.ScoredEvent{
		SessionID: sess.ID, VideoID: videoID, StudentUID: studentUID, FinalScore: 2.5, Segments: 1,
	}, f.events.events[0])

	_, err = f.realtime.GetPairing(ctx, sess.ID)
	assert.Equal(t, drowsiness.ErrPairingNotFound, errors.Cause(err))

	t.Run("same session twice", func(t *testing.T) {
		_, err := f.svc.Finish(ctx, studentUID, sess.ID)
		wantKind(t, err, core.KindConflict)
	})

	t.Run("same video and student", func(t *testing.T) {
		again := testutil.CreateSession(t, f.sessions, "again", studentUID, videoID, true)
		testutil.WriteLandmarks(t, f.store, again.ID, 5400)
		testutil.AppendPPG(t, f.realtime, again.ID, testutil.PPG(time.Now().UTC(), 100, 25))

		_, err := f.svc.Finish(ctx, studentUID, again.ID)
		wantKind(t, err, core.KindConflict)

		scores, err := f.scores.QueryScores(ctx, videoID, studentUID)
		require.NoError(t, err)
		assert.Len(t, scores, 1)
		assert.Equal(t, 1, f.model.calls)
	})
}

func TestService_Finish_twoSegments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)

	// 5 minutes of video: 60 shards, 2 windows; 150s of PPG: 2 segments
	testutil.WriteLandmarks(t, f.store, sess.ID, 9000)
	testutil.AppendPPG(t, f.realtime, sess.ID, testutil.PPG(time.Now().UTC(), 150, 25))

	res, err := f.svc.Finish(ctx, studentUID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Prediction.Windows)
	require.Len(t, res.Scores, 2)
	assert.Equal(t, 0, res.Scores[0].Timestamp)
	assert.Equal(t, f.conf.SegmentMinutes, res.Scores[1].Timestamp)

	levels, err := f.svc.Levels(ctx, studentUID, videoID)
	require.NoError(t, err)
	assert.Equal(t, []drowsiness.Level{{T: 0, Value: 2.5}, {T: 120, Value: 2.5}}, levels)
}

func TestService_Finish_errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, f *fixture)
		student  string
		wantKind core.ErrorKind
	}{
		{
			name:     "unknown session",
			setup:    func(*testing.T, *fixture) {},
			student:  studentUID,
			wantKind: core.KindNotFound,
		},
		{
			name: "other student",
			setup: func(t *testing.T, f *fixture) {
				testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)
			},
			student:  "someone-else",
			wantKind: core.KindForbidden,
		},
		{
			name: "no PPG",
			setup: func(t *testing.T, f *fixture) {
				testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)
				testutil.WriteLandmarks(t, f.store, "s1", 5400)
			},
			student:  studentUID,
			wantKind: core.KindTimeout,
		},
		{
			name: "insufficient PPG",
			setup: func(t *testing.T, f *fixture) {
				testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)
				testutil.WriteLandmarks(t, f.store, "s1", 5400)
				testutil.AppendPPG(t, f.realtime, "s1", testutil.PPG(time.Now(), 1, 25))
			},
			student:  studentUID,
			wantKind: core.KindBadRequest,
		},
		{
			name: "no landmarks",
			setup: func(t *testing.T, f *fixture) {
				testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)
				testutil.AppendPPG(t, f.realtime, "s1", testutil.PPG(time.Now(), 100, 25))
			},
			student:  studentUID,
			wantKind: core.KindNotFound,
		},
		{
			name: "insufficient viewing time",
			setup: func(t *testing.T, f *fixture) {
				testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)
				testutil.WriteLandmarks(t, f.store, "s1", 3000) // 20 shards
				testutil.AppendPPG(t, f.realtime, "s1", testutil.PPG(time.Now(), 100, 25))
			},
			student:  studentUID,
			wantKind: core.KindBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			_, err := f.svc.Finish(context.Background(), tt.student, "s1")
			wantKind(t, err, tt.wantKind)

			exists, err := f.scores.AnalysisExists(context.Background(), videoID, studentUID)
			require.NoError(t, err)
			assert.False(t, exists, "a failed finish leaves no analysis")
		})
	}
}

func TestService_Finish_failedRetiresAuthCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.svc.Start(ctx, studentUID, videoID)
	require.NoError(t, err)

	_, err = f.svc.Finish(ctx, studentUID, sess.ID)
	wantKind(t, err, core.KindTimeout)

	p, err := f.realtime.GetPairing(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, p.Stop)

	_, err = f.svc.Verify(ctx, sess.AuthCode)
	wantKind(t, err, core.KindNotFound)

	// the session is not finished: landmarks may stream again for a retry
	in, err := f.svc.OpenIngestor(ctx, sess.ID)
	require.NoError(t, err)
	require.NoError(t, in.Close())
}

// gatedStore pauses the first PPG poll until proceed is closed.
type gatedStore struct {
	*realtimesvc.Inmem
	once    sync.Once
	entered chan struct{}
	proceed chan struct{}
}

func (s *gatedStore) CountPPGSamples(ctx context.Context, sessionID string) (int64, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.proceed
	})
	return s.Inmem.CountPPGSamples(ctx, sessionID)
}

func TestService_Finish_refusesIngestorWhileRunning(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		Inmem:   realtimesvc.NewInmem(time.Hour),
		entered: make(chan struct{}),
		proceed: make(chan struct{}),
	}
	f := newFixture(t, store)
	sess := testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)
	testutil.WriteLandmarks(t, f.store, sess.ID, 5400)
	testutil.AppendPPG(t, store, sess.ID, testutil.PPG(time.Now().UTC(), 100, 25))

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Finish(ctx, studentUID, sess.ID)
		done <- err
	}()
	select {
	case <-store.entered:
	case err := <-done:
		t.Fatalf("Finish() returned before polling PPG: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Finish() never polled PPG")
	}

	_, err := f.svc.OpenIngestor(ctx, sess.ID)
	wantKind(t, err, core.KindConflict)

	close(store.proceed)
	require.NoError(t, <-done)

	_, err = f.svc.OpenIngestor(ctx, sess.ID)
	wantKind(t, err, core.KindConflict)
}

func TestService_Finish_concurrentSameVideo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := []string{"s1", "s2"}
	for _, id := range ids {
		testutil.CreateSession(t, f.sessions, id, studentUID, videoID, true)
		testutil.WriteLandmarks(t, f.store, id, 5400)
		testutil.AppendPPG(t, f.realtime, id, testutil.PPG(time.Now().UTC(), 100, 25))
	}

	errs := make(chan error, len(ids))
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Finish(ctx, studentUID, id)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var succeeded, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case core.KindOf(err) == core.KindConflict:
			conflicts++
		default:
			t.Errorf("Finish() unexpected error = %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)

	scores, err := f.scores.QueryScores(ctx, videoID, studentUID)
	require.NoError(t, err)
	assert.Len(t, scores, 1)

	var finished int
	for _, id := range ids {
		sess, err := f.svc.GetSession(ctx, studentUID, id)
		require.NoError(t, err)
		if sess.State() == drowsiness.StateFinished {
			finished++
		}
	}
	assert.Equal(t, 1, finished)
}

func finishSeconds(t *testing.T) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, metrics.FinishDuration.Write(m))
	return m.GetHistogram().GetSampleSum()
}

func TestService_Finish_durationFromClock(t *testing.T) {
	f := newFixture(t)
	clock := clockwork.NewFakeClock()
	svc := drowsiness.NewService(f.conf, drowsiness.Deps{
		Sessions:  f.sessions,
		Scores:    f.scores,
		Realtime:  f.realtime,
		Landmarks: f.store,
		Model:     inference.NewService(f.model, inference.ShapeFromConfig(f.conf), clock),
		Clock:     clock,
	})

	before := finishSeconds(t)
	_, err := svc.Finish(context.Background(), studentUID, "nope")
	wantKind(t, err, core.KindNotFound)
	assert.Equal(t, before, finishSeconds(t), "a frozen clock records no elapsed time")
}

func TestService_Finish_cancelled(t *testing.T) {
	f := newFixture(t)
	testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	start := time.Now()
	_, err := f.svc.Finish(ctx, studentUID, "s1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), f.conf.PPGTimeout)
}

func TestService_ClearScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.CreateSession(t, f.sessions, "s1", studentUID, videoID, true)
	require.NoError(t, f.scores.SaveAnalysis(ctx, drowsiness.Analysis{
		VideoID: videoID, StudentUID: studentUID, SessionID: "s1",
		Scores: []drowsiness.Score{{Timestamp: 0, DrowsinessScore: 1}},
	}))

	n, err := f.svc.ClearScores(ctx, videoID, studentUID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	levels, err := f.svc.Levels(ctx, studentUID, videoID)
	require.NoError(t, err)
	assert.Empty(t, levels)
}
