package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"evroaming/backend/services/sessions-service/internal/auditlog"
	"evroaming/backend/services/sessions-service/internal/models"
	"evroaming/backend/services/sessions-service/internal/store"
)

// errNotCached reports a session missing from redis.
var errNotCached = errors.New("redisstore: session not cached")

type cmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store mirrors live charging sessions into redis. It consumes the
// sessions audit stream, so the cache always holds the last written state.
type Store struct {
	client cmdable
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return newStore(client, ttl)
}

func newStore(client cmdable, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(id models.SessionID) string {
	return fmt.Sprintf("sessions:active:%s", id)
}

// Write implements auditlog.Sink. Records of other stores are ignored.
func (s *Store) Write(ctx context.Context, rec auditlog.Record) error {
	if rec.Store != auditlog.StoreSessions || rec.ID == "" {
		return nil
	}
	id := models.SessionID(rec.ID)
	switch rec.Verb {
	case store.VerbNew, store.VerbUpdate:
		if len(rec.Payload) == 0 {
			return nil
		}
		if err := s.client.Set(ctx, s.key(id), []byte(rec.Payload), s.ttl).Err(); err != nil {
			return fmt.Errorf("redisstore: cache %s: %w", id, err)
		}
	case store.VerbRemove:
		if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
			return fmt.Errorf("redisstore: evict %s: %w", id, err)
		}
	}
	return nil
}

// cached returns the cached JSON of a live session.
func (s *Store) cached(ctx context.Context, id models.SessionID) (json.RawMessage, error) {
	result, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errNotCached
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(result), nil
}
