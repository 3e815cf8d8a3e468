package service

import (
	"context"
	"time"

	"github.com/nextest/portal-auth/internal/domain"
)

//go:generate mockgen -destination=gomock/service_mocks.go -package=gomock . LoginServiceInterface,SessionManager,Mailer

type LoginServiceInterface interface {
	RequestCode(ctx context.Context, in RequestCodeInput) (*IssueResult, error)
	VerifyCode(ctx context.Context, in VerifyCodeInput) (*VerifyResult, error)
	CurrentUser(ctx context.Context, userID string) (*domain.User, error)
}

// SessionManager owns the server-side session and its signed cookie token.
type SessionManager interface {
	Establish(ctx context.Context, userID string) (*SessionGrant, error)
	Resolve(ctx context.Context, token string) (*SessionGrant, error)
	Destroy(ctx context.Context, token string) error
}

type Mailer interface {
	SendLoginCode(ctx context.Context, msg LoginCodeMessage) error
	Transport() string
}

type SessionGrant struct {
	Session domain.Session
	Token   string
}

func (g *SessionGrant) ExpiresAt() time.Time { return g.Session.ExpiresAt }
