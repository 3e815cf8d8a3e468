package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nextest/portal-auth/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrVerificationCodeNotFound = errors.New("verification code not found")

type VerificationCodeRepository interface {
	Create(ctx context.Context, code *domain.VerificationCode) error
	Replace(ctx context.Context, code *domain.VerificationCode, now time.Time) (int64, error)
	FindActive(ctx context.Context, email, code string, now time.Time) (*domain.VerificationCode, error)
	Consume(ctx context.Context, id string, now time.Time) error
	ListByEmail(ctx context.Context, email string) ([]domain.VerificationCode, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormVerificationCodeRepository struct {
	db *gorm.DB
}

func NewVerificationCodeRepository(db *gorm.DB) VerificationCodeRepository {
	return &GormVerificationCodeRepository{db: db}
}

func (r *GormVerificationCodeRepository) Create(ctx context.Context, code *domain.VerificationCode) error {
	err := r.db.WithContext(ctx).Create(code).Error
	observe(ctx, "verification_code", "create", err)
	return err
}

// Replace expires every still-pending code for code.Email and inserts code in
// one transaction, returning how many codes were expired. The user row is
// locked first so concurrent issues for the same email serialize and at most
// one pending code survives. Used codes are left alone.
func (r *GormVerificationCodeRepository) Replace(ctx context.Context, code *domain.VerificationCode, now time.Time) (int64, error) {
	var expired int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Model(&domain.User{}).Where("email = ?", code.Email).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.VerificationCode{}).
			Where("email = ? AND used = ? AND expires_at > ?", code.Email, false, now).
			Update("expires_at", now)
		if res.Error != nil {
			return res.Error
		}
		expired = res.RowsAffected
		return tx.Create(code).Error
	})
	observe(ctx, "verification_code", "replace", err)
	if err != nil {
		return 0, err
	}
	return expired, nil
}

// FindActive returns the newest unused, unexpired row matching email and code.
func (r *GormVerificationCodeRepository) FindActive(ctx context.Context, email, code string, now time.Time) (*domain.VerificationCode, error) {
	var vc domain.VerificationCode
	err := r.db.WithContext(ctx).
		Where("email = ? AND code = ? AND used = ? AND expires_at > ?", email, code, false, now).
		Order("created_at DESC").
		First(&vc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrVerificationCodeNotFound
	}
	observe(ctx, "verification_code", "find_active", err)
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

// Consume flips used in a single conditional update. When another request
// consumed the row first, or it expired in between, no row matches and
// ErrVerificationCodeNotFound is returned.
func (r *GormVerificationCodeRepository) Consume(ctx context.Context, id string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.VerificationCode{}).
		Where("id = ? AND used = ? AND expires_at > ?", id, false, now).
		Update("used", true)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrVerificationCodeNotFound
	}
	observe(ctx, "verification_code", "consume", err)
	return err
}

func (r *GormVerificationCodeRepository) ListByEmail(ctx context.Context, email string) ([]domain.VerificationCode, error) {
	var codes []domain.VerificationCode
	err := r.db.WithContext(ctx).Where("email = ?", email).Order("created_at DESC").Find(&codes).Error
	observe(ctx, "verification_code", "list_by_email", err)
	return codes, err
}

// DeleteStale removes codes that can never verify again: used rows created
// before cutoff and rows that expired before cutoff.
func (r *GormVerificationCodeRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(used = ? AND created_at < ?) OR expires_at < ?", true, cutoff, cutoff).
		Delete(&domain.VerificationCode{})
	observe(ctx, "verification_code", "delete_stale", res.Error)
	return res.RowsAffected, res.Error
}
