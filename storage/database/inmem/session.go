package inmemdb

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/drowsiness/core/drowsiness"
)

type sessionRepository struct {
	db *sessionTable
}

func NewSessionRepository(db *DB) drowsiness.SessionRepository {
	return &sessionRepository{db: db.session}
}

func (repo *sessionRepository) CreateSession(_ context.Context, sess drowsiness.Session) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[sess.ID] = &sess
	return nil
}

func (repo *sessionRepository) GetSession(_ context.Context, id string) (drowsiness.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sess, ok := repo.db.table[id]; ok {
		return *sess, nil
	}
	return drowsiness.Session{}, drowsiness.ErrSessionNotFound
}

func (repo *sessionRepository) MarkVerified(_ context.Context, id string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess, ok := repo.db.table[id]
	if !ok {
		return drowsiness.ErrSessionNotFound
	}
	sess.Verified = true
	sess.VerifiedAt = null.TimeFrom(at)
	return nil
}
