package repository

import (
	"context"
	"errors"

	"github.com/nextest/portal-auth/internal/domain"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is read-only: users are provisioned by the seed tool.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := r.first(ctx, "id = ?", id)
	observe(ctx, "user", "find_by_id", err)
	return u, err
}

// FindByEmail matches the stored address exactly; callers normalize first.
func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := r.first(ctx, "email = ?", email)
	observe(ctx, "user", "find_by_email", err)
	return u, err
}

func (r *GormUserRepository) first(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
