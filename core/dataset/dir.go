package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core/landmark"
)

const blobSuffix = "_shards.gob.zst"

// Ref locates one window across sessions.
type Ref struct {
	SessionID string
	Start     int
}

// Collection indexes the windows of every session found under a data directory.
type Collection struct {
	sessions map[string]*Sequence
	index    []Ref
}

// LoadDir loads every shard blob under dir (one level of session directories, or blobs at the
// top level) and builds the (session, start) index ordered by session id.
func LoadDir(dir string, seqLen, stride int) (*Collection, error) {
	if seqLen < 1 || stride < 1 {
		return nil, errInvalidParams
	}
	paths, err := findBlobs(dir)
	if err != nil {
		return nil, err
	}

	col := &Collection{sessions: make(map[string]*Sequence)}
	for _, path := range paths {
		set, err := landmark.LoadShards(path)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", filepath.Base(path))
		}
		id := set.SessionID
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(path), blobSuffix)
		}
		if prev, ok := col.sessions[id]; ok {
			set.Shards = append(prev.set.Shards, set.Shards...)
		}
		col.sessions[id], _ = New(set, seqLen, stride)
	}

	ids := make([]string, 0, len(col.sessions))
	for id := range col.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		seq := col.sessions[id]
		for i := 0; i < seq.Len(); i++ {
			col.index = append(col.index, Ref{SessionID: id, Start: seq.At(i).Start})
		}
	}
	return col, nil
}

func findBlobs(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{
		filepath.Join(dir, "*"+blobSuffix),
		filepath.Join(dir, "*", "*"+blobSuffix),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.Wrap(err, "globbing shard blobs")
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return nil, errors.Wrap(err, "reading data directory")
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (c *Collection) Len() int {
	return len(c.index)
}

// Ref returns the location of the i-th window.
func (c *Collection) Ref(i int) Ref {
	return c.index[i]
}

// Session returns the windows of one session.
func (c *Collection) Session(id string) (*Sequence, bool) {
	seq, ok := c.sessions[id]
	return seq, ok
}

// Sessions returns the session ids in index order.
func (c *Collection) Sessions() []string {
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// At returns the i-th window across all sessions with its session id.
func (c *Collection) At(i int) (string, Window) {
	ref := c.index[i]
	seq := c.sessions[ref.SessionID]
	return ref.SessionID, seq.At(ref.Start / seq.stride)
}
