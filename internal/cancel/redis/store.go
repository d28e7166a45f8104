// Package redissignal stores cancellation signals in Redis so a request layer
// and job runners on different hosts share them. Keys expire after the
// retention period.
package redissignal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps one key per job token holding the creation timestamp.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New connects to addr.
func New(addr, prefix string, ttl time.Duration) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl)
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "scraper:cancel:"
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the Redis client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *Store) key(token string) string {
	return s.prefix + token
}

// Create writes the signal key.
func (s *Store) Create(ctx context.Context, token string, at time.Time) error {
	if err := s.client.Set(ctx, s.key(token), at.UTC().Format(time.RFC3339Nano), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Lookup reads the signal key.
func (s *Store) Lookup(ctx context.Context, token string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse signal timestamp: %w", err)
	}
	return at, true, nil
}

// Delete removes the signal key.
func (s *Store) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Sweep removes signal keys created before cutoff. Keys normally expire on
// their own; this catches keys written without a TTL.
func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		at, ok, err := s.Lookup(ctx, strings.TrimPrefix(key, s.prefix))
		if err != nil || !ok || !at.Before(cutoff) {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("redis del: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}
