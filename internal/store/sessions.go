package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type SessionRepo struct{ db *DB }

func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

func (r *SessionRepo) Create(ctx context.Context, userID int64, token string, expires time.Time) (Session, error) {
	s := Session{
		UserID:       userID,
		SessionToken: token,
		ExpiresAt:    expires.UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.db.gorm.WithContext(ctx).Create(&s).Error; err != nil {
		return Session{}, errors.Wrap(err, "create session")
	}
	return s, nil
}

func (r *SessionRepo) GetByToken(ctx context.Context, token string) (Session, error) {
	var s Session
	err := r.db.gorm.WithContext(ctx).Where("session_token = ?", token).Take(&s).Error
	if err != nil {
		return Session{}, notFound(err, "get session")
	}
	return s, nil
}

func (r *SessionRepo) DeleteByToken(ctx context.Context, token string) error {
	err := r.db.gorm.WithContext(ctx).Where("session_token = ?", token).Delete(&Session{}).Error
	return errors.Wrap(err, "delete session")
}

// DeleteExpired removes sessions that expired before now and returns how
// many were removed.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.gorm.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&Session{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "delete expired sessions")
	}
	return res.RowsAffected, nil
}
