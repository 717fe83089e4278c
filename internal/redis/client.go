package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pion/logging"
	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/webrtc-gateway/config"
	"github.com/mossy-p/webrtc-gateway/internal/gateway"
	"github.com/mossy-p/webrtc-gateway/internal/models"
)

const sessionKeyPrefix = "session:"

var _ gateway.Store = (*SessionStore)(nil)

// SessionStore keeps session records in redis as JSON with a TTL.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	log    logging.LeveledLogger
}

// Connect initializes the Redis client
func Connect(ctx context.Context, cfg config.RedisConfig, loggerFactory logging.LoggerFactory) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewSessionStore(client, cfg.SessionTTL, loggerFactory), nil
}

// NewSessionStore wraps an existing client.
func NewSessionStore(client *redis.Client, ttl time.Duration, loggerFactory logging.LoggerFactory) *SessionStore {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &SessionStore{
		client: client,
		ttl:    ttl,
		log:    loggerFactory.NewLogger("redis"),
	}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Save stores rec and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, rec *models.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", rec.ID, err)
	}
	if err := s.client.Set(ctx, sessionKey(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", rec.ID, err)
	}
	s.log.Tracef("saved session %s state=%s", rec.ID, rec.State)
	return nil
}

// Get loads a record, gateway.ErrSessionNotFound when there is none.
func (s *SessionStore) Get(ctx context.Context, id string) (*models.SessionRecord, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gateway.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var rec models.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}
	return &rec, nil
}

// Delete removes a record. A missing record is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Ping reports whether redis is reachable.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *SessionStore) Close() error {
	return s.client.Close()
}
