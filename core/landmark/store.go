package landmark

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core"
)

// Store addresses the per-session landmark directories under a data root.
type Store struct {
	root string
	opts WriterOptions
	size int // frames per shard
}

func NewStore(conf core.DrowsinessConfig) *Store {
	return &Store{
		root: conf.DataDir,
		opts: WriterOptions{
			Landmarks:     conf.LandmarkCount,
			ChunkSize:     conf.ChunkSize,
			ChunksPerFile: conf.ChunksPerFile,
		},
		size: conf.ShardSize,
	}
}

// SessionDir returns the directory holding the session's tables and artifacts.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// Landmarks returns the expected landmark count per frame.
func (s *Store) Landmarks() int {
	return s.opts.Landmarks
}

func (s *Store) NewWriter(sessionID string) (*TableWriter, error) {
	return NewTableWriter(s.SessionDir(sessionID), s.opts)
}

func (s *Store) Tables(sessionID string) ([]Table, error) {
	return ListTables(s.SessionDir(sessionID))
}

// LatestModTime returns the newest modification time across the session's tables,
// and ErrNoTables when there is none.
func (s *Store) LatestModTime(sessionID string) (time.Time, error) {
	tables, err := s.Tables(sessionID)
	if err != nil {
		return time.Time{}, err
	}
	if len(tables) == 0 {
		return time.Time{}, ErrNoTables
	}
	var latest time.Time
	for _, tbl := range tables {
		if tbl.ModTime.After(latest) {
			latest = tbl.ModTime
		}
	}
	return latest, nil
}

// Shard merges the session's tables, shards the frames and persists the blob.
func (s *Store) Shard(sessionID string) (ShardSet, string, error) {
	points, _, err := ReadFrames(s.SessionDir(sessionID), s.opts.Landmarks)
	if err != nil {
		return ShardSet{}, "", err
	}
	set := MakeShards(sessionID, points, s.opts.Landmarks, s.size)
	path := BlobPath(s.SessionDir(sessionID), sessionID)
	if err = SaveShards(path, set); err != nil {
		return ShardSet{}, "", errors.Wrap(err, "saving shards")
	}
	return set, path, nil
}
