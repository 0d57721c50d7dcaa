package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

// RedisSessionRepository keeps wizard sessions in Redis, expiring with the session.
type RedisSessionRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisSessionRepository constructs a Redis backed session repository.
func NewRedisSessionRepository(client *redis.Client, prefix string, logger *zap.Logger) *RedisSessionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionRepository{client: client, prefix: prefix, logger: logger}
}

func (r *RedisSessionRepository) key(id string) string {
	return r.prefix + id
}

// Get loads a session by id.
func (r *RedisSessionRepository) Get(ctx context.Context, id string) (*models.RegistrationSession, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get session %s: %w", id, err)
	}

	var session models.RegistrationSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &session, nil
}

// Save stores the session until its ExpiresAt.
func (r *RedisSessionRepository) Save(ctx context.Context, session *models.RegistrationSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		r.logger.Debug("dropping expired session", zap.String("session_id", session.ID))
		return r.Delete(ctx, session.ID)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.ID, err)
	}
	if err := r.client.Set(ctx, r.key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session %s: %w", session.ID, err)
	}
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", id, err)
	}
	return nil
}

// MemorySessionRepository keeps sessions in process memory. Used when Redis is disabled.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	expiry   map[string]time.Time
	now      func() time.Time
}

// NewMemorySessionRepository constructs an empty in-memory session repository.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string][]byte),
		expiry:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// Get loads a session by id. The returned value is a copy.
func (r *MemorySessionRepository) Get(_ context.Context, id string) (*models.RegistrationSession, error) {
	r.mu.RLock()
	raw, ok := r.sessions[id]
	expiresAt := r.expiry[id]
	r.mu.RUnlock()

	if !ok || !r.now().Before(expiresAt) {
		return nil, ErrSessionNotFound
	}

	var session models.RegistrationSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &session, nil
}

// Save stores a copy of the session.
func (r *MemorySessionRepository) Save(_ context.Context, session *models.RegistrationSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = payload
	r.expiry[session.ID] = session.ExpiresAt
	r.sweepLocked()
	return nil
}

// Delete removes a session.
func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.expiry, id)
	return nil
}

func (r *MemorySessionRepository) sweepLocked() {
	now := r.now()
	for id, expiresAt := range r.expiry {
		if !now.Before(expiresAt) {
			delete(r.sessions, id)
			delete(r.expiry, id)
		}
	}
}
