package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextest/portal-auth/internal/apperr"
	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/observability"
	"github.com/nextest/portal-auth/internal/security"
)

// SessionService issues sliding sessions. Every successful Resolve pushes the
// expiry to now+ttl and re-signs the cookie token.
type SessionService struct {
	store  SessionStore
	signer *security.SessionSigner
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionService(store SessionStore, signer *security.SessionSigner, ttl time.Duration) *SessionService {
	return &SessionService{store: store, signer: signer, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SessionService) Establish(ctx context.Context, userID string) (grant *SessionGrant, err error) {
	ctx, span := observability.StartSpan(ctx, "SessionService.Establish", attribute.String("session.store", s.store.Name()))
	defer func() { observability.EndSpan(span, err) }()

	now := s.now()
	sess := domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, sess, now); err != nil {
		observability.RecordSessionEvent(ctx, "establish", "error")
		return nil, apperr.As(err)
	}
	token, err := s.signer.Sign(sess.ID, sess.ExpiresAt)
	if err != nil {
		observability.RecordSessionEvent(ctx, "establish", "error")
		return nil, apperr.Internal(err)
	}
	observability.RecordSessionEvent(ctx, "establish", "success")
	return &SessionGrant{Session: sess, Token: token}, nil
}

func (s *SessionService) Resolve(ctx context.Context, token string) (*SessionGrant, error) {
	id, err := s.signer.Parse(token)
	if err != nil {
		observability.RecordSessionEvent(ctx, "resolve", "invalid_token")
		return nil, ErrNotAuthenticated
	}
	now := s.now()
	sess, err := s.store.Load(ctx, id, now)
	if errors.Is(err, errSessionMissing) {
		observability.RecordSessionEvent(ctx, "resolve", "missing")
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		observability.RecordSessionEvent(ctx, "resolve", "error")
		return nil, apperr.As(err)
	}

	sess.ExpiresAt = now.Add(s.ttl)
	sess.UpdatedAt = now
	if err := s.store.Extend(ctx, sess.ID, sess.ExpiresAt); err != nil {
		if errors.Is(err, errSessionMissing) {
			observability.RecordSessionEvent(ctx, "resolve", "missing")
			return nil, ErrNotAuthenticated
		}
		observability.RecordSessionEvent(ctx, "resolve", "error")
		return nil, apperr.As(err)
	}
	refreshed, err := s.signer.Sign(sess.ID, sess.ExpiresAt)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	observability.RecordSessionEvent(ctx, "resolve", "success")
	return &SessionGrant{Session: *sess, Token: refreshed}, nil
}

// Destroy removes the session behind token. Unknown or invalid tokens are a
// no-op so logout stays idempotent.
func (s *SessionService) Destroy(ctx context.Context, token string) error {
	id, err := s.signer.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		observability.RecordSessionEvent(ctx, "destroy", "error")
		return apperr.As(err)
	}
	observability.RecordSessionEvent(ctx, "destroy", "success")
	return nil
}
