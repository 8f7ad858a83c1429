package landmark

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// WearFeatures is the width of the wearable feature placeholder carried by each shard.
const WearFeatures = 39

// Shard is a fixed-length run of frames. Face holds frames*landmarks*3 values; frames past
// the end of the session are zero. Wear and Label are placeholders replaced at inference time.
type Shard struct {
	Face  []float32
	Wear  []float32
	Label float32
}

// ShardSet is the ordered list of shards of one session.
type ShardSet struct {
	SessionID      string
	FramesPerShard int
	Landmarks      int
	Frames         int // real (unpadded) frames
	Shards         []Shard
}

// FrameWidth returns the number of values per frame.
func (s ShardSet) FrameWidth() int {
	return s.Landmarks * 3
}

// MakeShards splits flattened frames into ceil(frames/size) shards, zero-padding the last one.
func MakeShards(sessionID string, points []float32, landmarks, size int) ShardSet {
	width := landmarks * 3
	frames := 0
	if width > 0 {
		frames = len(points) / width
	}
	set := ShardSet{
		SessionID:      sessionID,
		FramesPerShard: size,
		Landmarks:      landmarks,
		Frames:         frames,
	}
	if frames == 0 || size < 1 {
		return set
	}

	shardLen := size * width
	set.Shards = make([]Shard, 0, (frames+size-1)/size)
	for start := 0; start < frames*width; start += shardLen {
		face := make([]float32, shardLen) // zero-valued padding
		end := start + shardLen
		if end > frames*width {
			end = frames * width
		}
		copy(face, points[start:end])
		set.Shards = append(set.Shards, Shard{
			Face: face,
			Wear: make([]float32, WearFeatures),
		})
	}
	return set
}

// BlobPath returns where the session's shard blob lives.
func BlobPath(sessionDir, sessionID string) string {
	return filepath.Join(sessionDir, sessionID+"_shards.gob.zst")
}

// SaveShards writes the set as a zstd-compressed gob blob.
func SaveShards(path string, set ShardSet) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating shard blob")
	}
	defer func() {
		if cErr := f.Close(); err == nil && cErr != nil {
			err = errors.Wrap(cErr, "closing shard blob")
		}
	}()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return errors.Wrap(err, "creating zstd writer")
	}
	if err = gob.NewEncoder(enc).Encode(set); err != nil {
		_ = enc.Close()
		return errors.Wrap(err, "encoding shards")
	}
	return errors.Wrap(enc.Close(), "flushing shard blob")
}

// LoadShards reads a blob written by SaveShards.
func LoadShards(path string) (ShardSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return ShardSet{}, errors.Wrap(err, "opening shard blob")
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return ShardSet{}, errors.Wrap(err, "creating zstd reader")
	}
	defer dec.Close()

	var set ShardSet
	if err = gob.NewDecoder(dec).Decode(&set); err != nil {
		return ShardSet{}, errors.Wrap(err, "decoding shards")
	}
	return set, nil
}
