package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nextest/portal-auth/internal/apperr"
	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/repository"
	repogomock "github.com/nextest/portal-auth/internal/repository/gomock"
	"github.com/nextest/portal-auth/internal/security"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

func newRedisSessionServiceForTest(t *testing.T) (*SessionService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisSessionStore(client, "portal")
	return NewSessionService(store, security.NewSessionSigner(testSessionSecret), time.Hour), mr
}

func TestSessionServiceEstablishAndResolve(t *testing.T) {
	svc, mr := newRedisSessionServiceForTest(t)
	ctx := context.Background()

	grant, err := svc.Establish(ctx, "u-1")
	require.NoError(t, err)
	require.NotEmpty(t, grant.Token)
	assert.True(t, mr.Exists("portal:session:"+grant.Session.ID))
	assert.Equal(t, "redis", svc.store.Name())

	resolved, err := svc.Resolve(ctx, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, grant.Session.ID, resolved.Session.ID)
	assert.Equal(t, "u-1", resolved.Session.UserID)
}

func TestSessionServiceRedisTTLFollowsServiceClock(t *testing.T) {
	svc, mr := newRedisSessionServiceForTest(t)
	fixed := time.Date(2020, 1, 15, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	grant, err := svc.Establish(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(time.Hour), grant.ExpiresAt())
	assert.Equal(t, time.Hour, mr.TTL("portal:session:"+grant.Session.ID))
}

func TestSessionStoresRejectAlreadyExpiredSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	sess := domain.Session{ID: "s-1", UserID: "u-1", ExpiresAt: now}

	require.Error(t, NewRedisSessionStore(client, "portal").Save(context.Background(), sess, now))
	assert.False(t, mr.Exists("portal:session:s-1"))

	ctrl := gomock.NewController(t)
	repo := repogomock.NewMockSessionRepository(ctrl)
	require.Error(t, NewDBSessionStore(repo).Save(context.Background(), sess, now))
}

func TestSessionServiceResolveSlidesExpiry(t *testing.T) {
	svc, _ := newRedisSessionServiceForTest(t)
	ctx := context.Background()

	grant, err := svc.Establish(ctx, "u-1")
	require.NoError(t, err)

	later := time.Now().UTC().Add(30 * time.Minute)
	svc.now = func() time.Time { return later }
	resolved, err := svc.Resolve(ctx, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, later.Add(time.Hour), resolved.ExpiresAt())
	assert.NotEmpty(t, resolved.Token)
}

func TestSessionServiceRejectsUnknownAndTamperedTokens(t *testing.T) {
	svc, mr := newRedisSessionServiceForTest(t)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	other := security.NewSessionSigner("another-secret-another-secret-xx")
	forged, err := other.Sign("whatever", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, forged)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	grant, err := svc.Establish(ctx, "u-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	_, err = svc.Resolve(ctx, grant.Token)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSessionServiceDestroyIsIdempotent(t *testing.T) {
	svc, mr := newRedisSessionServiceForTest(t)
	ctx := context.Background()

	grant, err := svc.Establish(ctx, "u-1")
	require.NoError(t, err)
	require.NoError(t, svc.Destroy(ctx, grant.Token))
	assert.False(t, mr.Exists("portal:session:"+grant.Session.ID))
	require.NoError(t, svc.Destroy(ctx, grant.Token))
	require.NoError(t, svc.Destroy(ctx, "garbage"))

	_, err = svc.Resolve(ctx, grant.Token)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSessionServiceRedisOutageIsUnavailable(t *testing.T) {
	svc, mr := newRedisSessionServiceForTest(t)
	mr.Close()

	_, err := svc.Establish(context.Background(), "u-1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))
}

func TestSessionServiceDatabaseStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := repogomock.NewMockSessionRepository(ctrl)
	svc := NewSessionService(NewDBSessionStore(repo), security.NewSessionSigner(testSessionSecret), time.Hour)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	var saved domain.Session
	// Establish hands the store a span-scoped context.
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s *domain.Session) error {
		saved = *s
		return nil
	})
	grant, err := svc.Establish(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "database", svc.store.Name())
	assert.Equal(t, now.Add(time.Hour), saved.ExpiresAt)

	repo.EXPECT().FindValid(ctx, saved.ID, now).Return(&saved, nil)
	repo.EXPECT().Extend(ctx, saved.ID, now.Add(time.Hour)).Return(nil)
	resolved, err := svc.Resolve(ctx, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", resolved.Session.UserID)

	repo.EXPECT().FindValid(ctx, saved.ID, now).Return(nil, repository.ErrSessionNotFound)
	_, err = svc.Resolve(ctx, grant.Token)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
