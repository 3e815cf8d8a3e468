package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextest/portal-auth/internal/apperr"
	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/repository"
	"github.com/redis/go-redis/v9"
)

var errSessionMissing = errors.New("session missing")

// SessionStore persists sessions. Load returns errSessionMissing for unknown
// or expired ids; any other error means the store itself failed.
type SessionStore interface {
	Save(ctx context.Context, s domain.Session, now time.Time) error
	Load(ctx context.Context, id string, now time.Time) (*domain.Session, error)
	Extend(ctx context.Context, id string, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	Name() string
}

// RedisSessionStore keeps one key per session holding the user id. The key
// TTL is the session lifetime.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) Name() string { return "redis" }

func (s *RedisSessionStore) key(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *RedisSessionStore) Save(ctx context.Context, sess domain.Session, now time.Time) error {
	if sess.Expired(now) {
		return fmt.Errorf("save session %s: already expired", sess.ID)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), sess.UserID, sess.ExpiresAt.Sub(now)).Err(); err != nil {
		return apperr.Unavailable("Session store unavailable", err)
	}
	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context, id string, now time.Time) (*domain.Session, error) {
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, s.key(id))
	ttl := pipe.PTTL(ctx, s.key(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, apperr.Unavailable("Session store unavailable", err)
	}
	userID, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return nil, errSessionMissing
	}
	if err != nil {
		return nil, apperr.Unavailable("Session store unavailable", err)
	}
	remaining := ttl.Val()
	if remaining <= 0 {
		return nil, errSessionMissing
	}
	return &domain.Session{ID: id, UserID: userID, ExpiresAt: now.Add(remaining)}, nil
}

func (s *RedisSessionStore) Extend(ctx context.Context, id string, expiresAt time.Time) error {
	ok, err := s.client.PExpireAt(ctx, s.key(id), expiresAt).Result()
	if err != nil {
		return apperr.Unavailable("Session store unavailable", err)
	}
	if !ok {
		return errSessionMissing
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return apperr.Unavailable("Session store unavailable", err)
	}
	return nil
}

// DBSessionStore is used when redis is disabled.
type DBSessionStore struct {
	repo repository.SessionRepository
}

func NewDBSessionStore(repo repository.SessionRepository) *DBSessionStore {
	return &DBSessionStore{repo: repo}
}

func (s *DBSessionStore) Name() string { return "database" }

func (s *DBSessionStore) Save(ctx context.Context, sess domain.Session, now time.Time) error {
	if sess.Expired(now) {
		return fmt.Errorf("save session %s: already expired", sess.ID)
	}
	if err := s.repo.Create(ctx, &sess); err != nil {
		return apperr.FromStore(err)
	}
	return nil
}

func (s *DBSessionStore) Load(ctx context.Context, id string, now time.Time) (*domain.Session, error) {
	sess, err := s.repo.FindValid(ctx, id, now)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, errSessionMissing
	}
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return sess, nil
}

func (s *DBSessionStore) Extend(ctx context.Context, id string, expiresAt time.Time) error {
	err := s.repo.Extend(ctx, id, expiresAt)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return errSessionMissing
	}
	if err != nil {
		return apperr.FromStore(err)
	}
	return nil
}

func (s *DBSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return apperr.FromStore(err)
	}
	return nil
}
