package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/drowsiness/core/drowsiness"
)

type scoreRepository struct {
	db       *analysisTable
	sessions *sessionTable
}

func NewScoreRepository(db *DB) drowsiness.ScoreRepository {
	return &scoreRepository{db: db.analysis, sessions: db.session}
}

func (repo *scoreRepository) AnalysisExists(_ context.Context, videoID int, studentUID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.table[analysisKey{videoID: videoID, studentUID: studentUID}]
	return ok, nil
}

func (repo *scoreRepository) SaveAnalysis(_ context.Context, a drowsiness.Analysis) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := analysisKey{videoID: a.VideoID, studentUID: a.StudentUID}
	if _, ok := repo.db.table[key]; ok {
		return drowsiness.ErrDuplicateAnalysis
	}
	a.Scores = append([]drowsiness.Score(nil), a.Scores...)
	repo.db.table[key] = &a

	repo.sessions.mutex.Lock()
	if sess, ok := repo.sessions.table[a.SessionID]; ok {
		sess.FinishedAt = null.TimeFrom(a.CreatedAt)
	}
	repo.sessions.mutex.Unlock()
	return nil
}

func (repo *scoreRepository) QueryScores(_ context.Context, videoID int, studentUID string) ([]drowsiness.Score, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	a, ok := repo.db.table[analysisKey{videoID: videoID, studentUID: studentUID}]
	if !ok {
		return []drowsiness.Score{}, nil
	}
	scores := append([]drowsiness.Score(nil), a.Scores...)
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Timestamp < scores[j].Timestamp })
	return scores, nil
}

func (repo *scoreRepository) DeleteAnalysis(_ context.Context, videoID int, studentUID string) (int64, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := analysisKey{videoID: videoID, studentUID: studentUID}
	a, ok := repo.db.table[key]
	if !ok {
		return 0, nil
	}
	delete(repo.db.table, key)
	return int64(len(a.Scores)), nil
}
