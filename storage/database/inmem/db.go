package inmemdb

import (
	"sync"

	"github.com/trezcool/drowsiness/core/drowsiness"
)

type (
	DB struct {
		session  *sessionTable
		analysis *analysisTable
	}

	sessionTable struct {
		table map[string]*drowsiness.Session
		mutex sync.RWMutex
	}

	analysisKey struct {
		videoID    int
		studentUID string
	}

	// analysisTable also guards session.finished_at updates made by SaveAnalysis.
	analysisTable struct {
		table map[analysisKey]*drowsiness.Analysis
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		session:  &sessionTable{table: make(map[string]*drowsiness.Session)},
		analysis: &analysisTable{table: make(map[analysisKey]*drowsiness.Analysis)},
	}
}
