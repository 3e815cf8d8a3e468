// Package repository holds the gorm-backed stores for users, verification
// codes and database sessions.
package repository

import (
	"context"
	"errors"

	"github.com/nextest/portal-auth/internal/observability"

	"gorm.io/gorm"
)

//go:generate mockgen -destination=gomock/repository_mocks.go -package=gomock . UserRepository,VerificationCodeRepository,SessionRepository

func observe(ctx context.Context, repo, op string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrVerificationCodeNotFound),
		errors.Is(err, ErrSessionNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(ctx, repo, op, outcome)
}
