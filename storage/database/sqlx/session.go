package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/drowsiness/core/drowsiness"
)

type sessionRow struct {
	ID         string    `db:"id"`
	StudentUID string    `db:"student_uid"`
	VideoID    int       `db:"video_id"`
	AuthCode   string    `db:"auth_code"`
	Verified   bool      `db:"verified"`
	VerifiedAt null.Time `db:"verified_at"`
	FinishedAt null.Time `db:"finished_at"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r sessionRow) session() drowsiness.Session {
	return drowsiness.Session{
		ID:         r.ID,
		StudentUID: r.StudentUID,
		VideoID:    r.VideoID,
		AuthCode:   r.AuthCode,
		Verified:   r.Verified,
		VerifiedAt: r.VerifiedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type sessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) drowsiness.SessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, sess drowsiness.Session) error {
	row := sessionRow{
		ID:         sess.ID,
		StudentUID: sess.StudentUID,
		VideoID:    sess.VideoID,
		AuthCode:   sess.AuthCode,
		Verified:   sess.Verified,
		VerifiedAt: sess.VerifiedAt,
		FinishedAt: sess.FinishedAt,
		CreatedAt:  sess.CreatedAt,
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO drowsiness_session
			(id, student_uid, video_id, auth_code, verified, verified_at, finished_at, created_at)
		VALUES
			(:id, :student_uid, :video_id, :auth_code, :verified, :verified_at, :finished_at, :created_at)`,
		row,
	)
	return errors.Wrap(err, "inserting session")
}

func (repo *sessionRepository) GetSession(ctx context.Context, id string) (drowsiness.Session, error) {
	var row sessionRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM drowsiness_session WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return drowsiness.Session{}, drowsiness.ErrSessionNotFound
		}
		return drowsiness.Session{}, errors.Wrap(err, "selecting session")
	}
	return row.session(), nil
}

func (repo *sessionRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE drowsiness_session SET verified = TRUE, verified_at = $2 WHERE id = $1`,
		id, at.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "updating session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return drowsiness.ErrSessionNotFound
	}
	return nil
}
