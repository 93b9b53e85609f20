// Package session persists per-session discovery state (active city and
// filter criteria) in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace-discovery-service/internal/domain"
)

// DefaultTTL keeps session state around long enough to survive page reloads
// within a browsing session.
const DefaultTTL = 12 * time.Hour

// Store is a Redis-backed session store. City and criteria live under
// separate keys so an explicit city change does not disturb the persisted
// filter blob and vice versa.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a session store. A non-positive TTL falls back to
// DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func cityKey(sessionID string) string     { return "session:" + sessionID + ":city" }
func criteriaKey(sessionID string) string { return "session:" + sessionID + ":criteria" }

// City returns the persisted city for the session, or "" when none is set.
func (s *Store) City(ctx context.Context, sessionID string) (string, error) {
	val, err := s.client.Get(ctx, cityKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: failed to read city: %w", err)
	}
	return val, nil
}

// SetCity persists the session's active city.
func (s *Store) SetCity(ctx context.Context, sessionID, city string) error {
	if err := s.client.Set(ctx, cityKey(sessionID), city, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: failed to persist city: %w", err)
	}
	return nil
}

// Criteria returns the persisted filter criteria, or (nil, nil) when none
// are stored.
func (s *Store) Criteria(ctx context.Context, sessionID string) (*domain.FilterCriteria, error) {
	val, err := s.client.Get(ctx, criteriaKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: failed to read criteria: %w", err)
	}
	var criteria domain.FilterCriteria
	if err := json.Unmarshal(val, &criteria); err != nil {
		return nil, fmt.Errorf("session: failed to decode criteria blob: %w", err)
	}
	return &criteria, nil
}

// SetCriteria replaces the persisted criteria wholesale.
func (s *Store) SetCriteria(ctx context.Context, sessionID string, criteria domain.FilterCriteria) error {
	blob, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("session: failed to encode criteria: %w", err)
	}
	if err := s.client.Set(ctx, criteriaKey(sessionID), blob, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: failed to persist criteria: %w", err)
	}
	return nil
}
