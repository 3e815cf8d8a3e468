package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nextest/portal-auth/internal/domain"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindValid(ctx context.Context, id string, now time.Time) (*domain.Session, error)
	Extend(ctx context.Context, id string, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	observe(ctx, "session", "create", err)
	return err
}

func (r *GormSessionRepository) FindValid(ctx context.Context, id string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("id = ? AND expires_at > ?", id, now).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrSessionNotFound
	}
	observe(ctx, "session", "find_valid", err)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSessionRepository) Extend(ctx context.Context, id string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", id).
		Updates(map[string]any{"expires_at": expiresAt, "updated_at": time.Now().UTC()})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrSessionNotFound
	}
	observe(ctx, "session", "extend", err)
	return err
}

// Delete is idempotent: removing a missing session is not an error.
func (r *GormSessionRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Session{}).Error
	observe(ctx, "session", "delete", err)
	return err
}

func (r *GormSessionRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Session{})
	observe(ctx, "session", "cleanup_expired", res.Error)
	return res.RowsAffected, res.Error
}
