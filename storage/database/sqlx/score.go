package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core/drowsiness"
)

type levelRow struct {
	VideoID         int     `db:"video_id"`
	StudentUID      string  `db:"student_uid"`
	Timestamp       int     `db:"timestamp"`
	DrowsinessScore float64 `db:"drowsiness_score"`
}

type scoreRepository struct {
	db *sqlx.DB
}

func NewScoreRepository(db *sqlx.DB) drowsiness.ScoreRepository {
	return &scoreRepository{db: db}
}

func (repo *scoreRepository) AnalysisExists(ctx context.Context, videoID int, studentUID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM drowsiness_analysis WHERE video_id = $1 AND student_uid = $2)`,
		videoID, studentUID,
	)
	return exists, errors.Wrap(err, "checking analysis")
}

func (repo *scoreRepository) SaveAnalysis(ctx context.Context, a drowsiness.Analysis) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO drowsiness_analysis (video_id, student_uid, session_id, final_score, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.VideoID, a.StudentUID, a.SessionID, a.FinalScore, a.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return drowsiness.ErrDuplicateAnalysis
		}
		return errors.Wrap(err, "inserting analysis")
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO drowsiness_level (video_id, student_uid, timestamp, drowsiness_score)
		VALUES ($1, $2, $3, $4)`,
	)
	if err != nil {
		return errors.Wrap(err, "preparing levels insert")
	}
	defer func() { _ = stmt.Close() }()
	for _, s := range a.Scores {
		if _, err = stmt.ExecContext(ctx, a.VideoID, a.StudentUID, s.Timestamp, s.DrowsinessScore); err != nil {
			return errors.Wrap(err, "inserting level")
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE drowsiness_session SET finished_at = $2 WHERE id = $1`,
		a.SessionID, a.CreatedAt.UTC(),
	); err != nil {
		return errors.Wrap(err, "finishing session")
	}
	return errors.Wrap(tx.Commit(), "committing analysis")
}

func (repo *scoreRepository) QueryScores(ctx context.Context, videoID int, studentUID string) ([]drowsiness.Score, error) {
	var rows []levelRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT video_id, student_uid, timestamp, drowsiness_score
		FROM drowsiness_level
		WHERE video_id = $1 AND student_uid = $2
		ORDER BY timestamp`,
		videoID, studentUID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting levels")
	}
	scores := make([]drowsiness.Score, len(rows))
	for i, r := range rows {
		scores[i] = drowsiness.Score(r)
	}
	return scores, nil
}

// DeleteAnalysis removes the analysis and returns how many levels went with it.
func (repo *scoreRepository) DeleteAnalysis(ctx context.Context, videoID int, studentUID string) (n int64, err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM drowsiness_level WHERE video_id = $1 AND student_uid = $2`, videoID, studentUID)
	if err != nil {
		return 0, errors.Wrap(err, "deleting levels")
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, errors.Wrap(err, "counting levels")
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM drowsiness_analysis WHERE video_id = $1 AND student_uid = $2`, videoID, studentUID,
	); err != nil {
		return 0, errors.Wrap(err, "deleting analysis")
	}
	return n, errors.Wrap(tx.Commit(), "committing delete")
}
