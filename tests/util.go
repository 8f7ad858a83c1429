package testutil

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/trezcool/drowsiness/core/drowsiness"
	"github.com/trezcool/drowsiness/core/hrv"
	"github.com/trezcool/drowsiness/core/landmark"
)

func CreateSession(
	t *testing.T,
	repo drowsiness.SessionRepository,
	id, studentUID string,
	videoID int,
	verified bool,
) drowsiness.Session {
	t.Helper()
	sess := drowsiness.Session{
		ID:         id,
		StudentUID: studentUID,
		VideoID:    videoID,
		Verified:   verified,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

// PPG returns `seconds` of a 72 bpm pulse wave sampled at fs, starting at start.
func PPG(start time.Time, seconds, fs float64) []hrv.Sample {
	n := int(seconds * fs)
	samples := make([]hrv.Sample, n)
	for i := range samples {
		t := float64(i) / fs
		v := 2000 + 40*math.Sin(2*math.Pi*1.2*t) + 8*math.Sin(2*math.Pi*2.4*t+0.3)
		samples[i] = hrv.Sample{Time: start.Add(time.Duration(t * float64(time.Second))), Green: v}
	}
	return samples
}

// AppendPPG pushes samples to the store as the wearable would.
func AppendPPG(t *testing.T, store drowsiness.RealtimeStore, sessionID string, samples []hrv.Sample) {
	t.Helper()
	if err := store.AppendPPGSamples(context.Background(), sessionID, samples...); err != nil {
		t.Fatalf("AppendPPGSamples() failed: %v", err)
	}
}

// Landmarks returns `count` deterministic points for frame i.
func Landmarks(i, count int) [][]float64 {
	points := make([][]float64, count)
	for j := range points {
		base := float64(i%1000)/1000 + float64(j)/float64(count)
		points[j] = []float64{base, base / 2, -base}
	}
	return points
}

// FrameMessage encodes frame i as sent by the landmark client.
func FrameMessage(t *testing.T, i, count int) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"type":      landmark.TypeFrame,
		"timestamp": float64(i) / 30,
		"landmarks": Landmarks(i, count),
	})
	if err != nil {
		t.Fatalf("FrameMessage() failed: %v", err)
	}
	return data
}

// WriteLandmarks stores `frames` frames for the session, bypassing the ingestion stream.
func WriteLandmarks(t *testing.T, store *landmark.Store, sessionID string, frames int) {
	t.Helper()
	w, err := store.NewWriter(sessionID)
	if err != nil {
		t.Fatalf("NewWriter() failed: %v", err)
	}
	count := store.Landmarks()
	for i := 0; i < frames; i++ {
		points := make([]float32, 0, count*3)
		for _, p := range Landmarks(i, count) {
			points = append(points, float32(p[0]), float32(p[1]), float32(p[2]))
		}
		if err = w.Append(landmark.Frame{Timestamp: float64(i) / 30, Points: points}); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}
	if err = w.Flush(); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
}
