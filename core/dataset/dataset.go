// Package dataset turns a session's shards into strided, fixed-length model windows.
package dataset

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core/landmark"
)

var errInvalidParams = errors.New("dataset: seqLen and stride must be positive")

// Window is seqLen consecutive shards starting at Start. It references the shards, no copy is made.
type Window struct {
	Index  int
	Start  int
	Shards []landmark.Shard
}

// Sequence is a lazy, finite and restartable view of a session's windows.
type Sequence struct {
	set    landmark.ShardSet
	seqLen int
	stride int
}

func New(set landmark.ShardSet, seqLen, stride int) (*Sequence, error) {
	if seqLen < 1 || stride < 1 {
		return nil, errInvalidParams
	}
	return &Sequence{set: set, seqLen: seqLen, stride: stride}, nil
}

// WindowCount returns max(0, floor((shards-seqLen)/stride)+1).
func WindowCount(shards, seqLen, stride int) int {
	if seqLen < 1 || stride < 1 || shards < seqLen {
		return 0
	}
	return (shards-seqLen)/stride + 1
}

func (s *Sequence) Len() int {
	return WindowCount(len(s.set.Shards), s.seqLen, s.stride)
}

func (s *Sequence) SeqLen() int {
	return s.seqLen
}

// ShardSet returns the underlying shards.
func (s *Sequence) ShardSet() landmark.ShardSet {
	return s.set
}

// At returns the i-th window. It panics when i is out of range, like a slice index.
func (s *Sequence) At(i int) Window {
	if i < 0 || i >= s.Len() {
		panic(errors.Errorf("dataset: window %d out of range [0,%d)", i, s.Len()))
	}
	start := i * s.stride
	return Window{Index: i, Start: start, Shards: s.set.Shards[start : start+s.seqLen]}
}

// All yields every window in order. Each call starts over from the first window.
func (s *Sequence) All() iter.Seq2[int, Window] {
	return func(yield func(int, Window) bool) {
		for i := 0; i < s.Len(); i++ {
			if !yield(i, s.At(i)) {
				return
			}
		}
	}
}

// Face flattens the window's faces in (seqLen, frames, landmarks, 3) order.
func (w Window) Face() []float32 {
	if len(w.Shards) == 0 {
		return nil
	}
	out := make([]float32, 0, len(w.Shards)*len(w.Shards[0].Face))
	for _, sh := range w.Shards {
		out = append(out, sh.Face...)
	}
	return out
}
