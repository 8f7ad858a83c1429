package landmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(ts float64, count int) Frame {
	pts := make([]float32, count*3)
	for i := range pts {
		pts[i] = float32(ts) + float32(i)/1000
	}
	return Frame{Timestamp: ts, Points: pts}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantType string
		wantErr  error
	}{
		{name: "ping", data: `{"type":"ping"}`, wantType: TypePing},
		{name: "frame", data: `{"type":"frame","timestamp":1.5,"landmarks":[[1,2,3],[4,5,6]]}`, wantType: TypeFrame},
		{name: "untyped frame", data: `{"timestamp":1.5,"landmarks":[[1,2,3],[4,5,6]]}`, wantType: TypeFrame},
		{name: "not json", data: `lol`, wantErr: ErrMalformedMessage},
		{name: "unknown type", data: `{"type":"hello"}`, wantErr: ErrMalformedMessage},
		{name: "no landmarks", data: `{"type":"frame","timestamp":1}`, wantErr: ErrMalformedMessage},
		{name: "wrong count", data: `{"type":"frame","landmarks":[[1,2,3]]}`, wantErr: ErrLandmarkCount},
		{name: "not a triplet", data: `{"type":"frame","landmarks":[[1,2,3],[4,5]]}`, wantErr: ErrMalformedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, frame, err := DecodeMessage([]byte(tt.data), 2)
			if errors.Cause(err) != tt.wantErr {
				t.Fatalf("DecodeMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.wantType, typ)
			if typ == TypeFrame {
				assert.Equal(t, 1.5, frame.Timestamp)
				assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, frame.Points)
			}
		})
	}
}

func TestTableWriter_rotationAndOrder(t *testing.T) {
	dir := t.TempDir()
	const landmarks = 2
	w, err := NewTableWriter(dir, WriterOptions{Landmarks: landmarks, ChunkSize: 3, ChunksPerFile: 2})
	require.NoError(t, err)

	// 14 frames: 4 full chunks over 2 files, then 2 buffered rows
	for i := 0; i < 14; i++ {
		require.NoError(t, w.Append(testFrame(float64(i), landmarks)))
	}
	assert.Equal(t, 12, w.FramesWritten())
	assert.Equal(t, 2, w.Buffered())

	require.NoError(t, w.Flush())
	assert.Equal(t, 0, w.Buffered())

	tables, err := ListTables(dir)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	for i, tbl := range tables {
		assert.Equal(t, i+1, tbl.Number)
		assert.Equal(t, fmt.Sprintf("landmarks_%03d.csv", i+1), filepath.Base(tbl.Path))
	}

	points, frames, err := ReadFrames(dir, landmarks)
	require.NoError(t, err)
	require.Equal(t, 14, frames)
	for i := 0; i < frames; i++ {
		assert.Equal(t, testFrame(float64(i), landmarks).Points, points[i*landmarks*3:(i+1)*landmarks*3], "frame %d", i)
	}
}

func TestTableWriter_resumesAfterExistingTables(t *testing.T) {
	dir := t.TempDir()
	opts := WriterOptions{Landmarks: 1, ChunkSize: 2, ChunksPerFile: 10}

	w1, err := NewTableWriter(dir, opts)
	require.NoError(t, err)
	require.NoError(t, w1.Append(testFrame(0, 1)))
	require.NoError(t, w1.Flush())

	w2, err := NewTableWriter(dir, opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "landmarks_002.csv"), w2.CurrentTable())
	require.NoError(t, w2.Append(testFrame(1, 1)))
	require.NoError(t, w2.Flush())

	_, frames, err := ReadFrames(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, frames)
}

func TestListTables_ignoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"landmarks_010.csv", "landmarks_002.csv", "notes.txt", "landmarks_x.csv", "hrv_features.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	tables, err := ListTables(dir)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, 2, tables[0].Number)
	assert.Equal(t, 10, tables[1].Number)

	tables, err = ListTables(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestReadFrames_noTables(t *testing.T) {
	if _, _, err := ReadFrames(t.TempDir(), 478); err != ErrNoTables {
		t.Errorf("ReadFrames() error = %v, wantErr %v", err, ErrNoTables)
	}
}

func TestMakeShards_padding(t *testing.T) {
	const landmarks = 2
	width := landmarks * 3
	tests := []struct {
		frames     int
		size       int
		wantShards int
		wantLast   int // real frames in the last shard
	}{
		{frames: 0, size: 4, wantShards: 0},
		{frames: 1, size: 4, wantShards: 1, wantLast: 1},
		{frames: 4, size: 4, wantShards: 1, wantLast: 4},
		{frames: 9, size: 4, wantShards: 3, wantLast: 1},
		{frames: 12, size: 4, wantShards: 3, wantLast: 4},
		{frames: 5400, size: 150, wantShards: 36, wantLast: 150},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d frames by %d", tt.frames, tt.size), func(t *testing.T) {
			points := make([]float32, tt.frames*width)
			for i := range points {
				points[i] = 1
			}
			set := MakeShards("s", points, landmarks, tt.size)
			require.Len(t, set.Shards, tt.wantShards)
			assert.Equal(t, tt.frames, set.Frames)
			if tt.wantShards == 0 {
				return
			}
			for _, sh := range set.Shards {
				assert.Len(t, sh.Face, tt.size*width)
				assert.Len(t, sh.Wear, WearFeatures)
				assert.Zero(t, sh.Label)
			}
			last := set.Shards[len(set.Shards)-1].Face
			for i, v := range last {
				if i < tt.wantLast*width {
					assert.Equal(t, float32(1), v)
				} else {
					assert.Zero(t, v, "padding at %d", i)
				}
			}
		})
	}
}

func TestSaveLoadShards(t *testing.T) {
	dir := t.TempDir()
	set := MakeShards("sess", []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 2)
	path := BlobPath(dir, "sess")
	assert.Equal(t, filepath.Join(dir, "sess_shards.gob.zst"), path)

	require.NoError(t, SaveShards(path, set))
	got, err := LoadShards(path)
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	ctx, release, err := reg.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, reg.Active("s1"))

	if _, _, err = reg.Acquire(context.Background(), "s1"); err != ErrIngestorActive {
		t.Errorf("Acquire() error = %v, wantErr %v", err, ErrIngestorActive)
	}

	// the ingestor releases once its context is cancelled
	go func() {
		<-ctx.Done()
		release()
	}()

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Close(closeCtx, "s1"))
	assert.False(t, reg.Active("s1"))

	// closing an idle session is a no-op
	require.NoError(t, reg.Close(closeCtx, "s2"))

	// the session can stream again
	_, release, err = reg.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	release()
	release()
}

func TestRegistry_Hold(t *testing.T) {
	reg := NewRegistry()

	resume := reg.Hold("s1")
	again := reg.Hold("s1")
	if _, _, err := reg.Acquire(context.Background(), "s1"); err != ErrSessionFinishing {
		t.Errorf("Acquire() error = %v, wantErr %v", err, ErrSessionFinishing)
	}
	_, release, err := reg.Acquire(context.Background(), "s2")
	require.NoError(t, err, "other sessions are not held")
	release()

	resume()
	resume()
	if _, _, err = reg.Acquire(context.Background(), "s1"); err != ErrSessionFinishing {
		t.Errorf("Acquire() with one hold left: error = %v, wantErr %v", err, ErrSessionFinishing)
	}

	again()
	_, release, err = reg.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	release()
}
