// Package session keeps short-lived per-user conversation state for the bot:
// which step of a dialog the user is in and which order it concerns. State is
// small, expires on its own, and losing it only means the user taps a button
// again, so the store is deliberately lossy.
//
// Two implementations exist: Redis for deployments with more than one
// instance, and an in-process map used when no Redis address is configured.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no state is stored for the user.
var ErrNotFound = errors.New("session not found")

// State is one user's position in a bot dialog.
type State struct {
	// Name identifies the dialog step, e.g. "await_payment_link".
	Name string `json:"name"`
	// OrderID is the order the dialog concerns.
	OrderID uint `json:"order_id"`
}

// Store persists dialog state keyed by Telegram user id.
type Store interface {
	// Get returns the user's state, or ErrNotFound.
	Get(ctx context.Context, userID int64) (State, error)
	// Set stores the user's state, replacing any previous one.
	Set(ctx context.Context, userID int64, st State) error
	// Clear drops the user's state. Clearing absent state is not an error.
	Clear(ctx context.Context, userID int64) error
}

// keyPrefix namespaces session keys in a shared Redis.
const keyPrefix = "bot:session:"

// RedisStore keeps state in Redis with a per-entry TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. ttl bounds how long an
// abandoned dialog survives.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, userID int64) (State, error) {
	raw, err := s.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("session get: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("session decode: %w", err)
	}
	return st, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, userID int64, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

// MemoryStore is the single-instance fallback. Expired entries are dropped
// lazily on read.
type MemoryStore struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[int64]memEntry
	now func() time.Time // test seam
}

type memEntry struct {
	st      State
	expires time.Time
}

// NewMemoryStore builds an in-process store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl: ttl,
		m:   make(map[int64]memEntry),
		now: time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID int64) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[userID]
	if !ok {
		return State{}, ErrNotFound
	}
	if s.now().After(e.expires) {
		delete(s.m, userID)
		return State{}, ErrNotFound
	}
	return e.st, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, userID int64, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = memEntry{st: st, expires: s.now().Add(s.ttl)}
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
	return nil
}
