// Package store is the typed Redis wrapper every other component persists
// through: the per-symbol event log, dedupe and rate-limit keys, the
// runtime config, the latest-evaluation envelope and the AI single-flight
// lock. All cross-process coordination goes through these keys; replicas
// share nothing else.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mertkaradayi/tvintel/internal/signal"
)

const (
	// Prefix namespaces every key this service owns.
	Prefix = "tv:"

	// EventTTL bounds the lifetime of a symbol's event log.
	EventTTL = 24 * time.Hour
	// LatestTTL bounds the lifetime of the latest-evaluation envelope.
	LatestTTL = 48 * time.Hour
)

// Store wraps a Redis client with the service's key layout.
type Store struct {
	client *redis.Client
}

// New wraps an existing client (tests inject miniredis through here).
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// NewFromURL connects to Redis from a redis:// URL and verifies the
// connection.
func NewFromURL(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Msg("Redis connected")
	return &Store{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.client.Close() }

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(pingCtx).Err() == nil
}

func eventsKey(symbol string) string { return Prefix + "events:" + symbol }

// AppendEvent appends a normalized event to the symbol's log, trims the
// log to the last maxPerSymbol entries and refreshes the 24h TTL. The
// three commands run in one pipeline so the bound holds after every
// admission.
func (s *Store) AppendEvent(ctx context.Context, symbol string, data []byte, maxPerSymbol int) error {
	key := eventsKey(symbol)

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-maxPerSymbol), -1)
	pipe.Expire(ctx, key, EventTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// RecentEvents returns up to n raw JSON entries from the tail of the
// symbol's log, oldest first.
func (s *Store) RecentEvents(ctx context.Context, symbol string, n int) ([]string, error) {
	raws, err := s.client.LRange(ctx, eventsKey(symbol), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return raws, nil
}

// AllEvents returns the full log for a symbol, oldest first.
func (s *Store) AllEvents(ctx context.Context, symbol string) ([]string, error) {
	raws, err := s.client.LRange(ctx, eventsKey(symbol), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return raws, nil
}

// RemoveEvent deletes the first log entry equal to raw. Returns the number
// of entries removed (0 or 1).
func (s *Store) RemoveEvent(ctx context.Context, symbol string, raw string) (int64, error) {
	removed, err := s.client.LRem(ctx, eventsKey(symbol), 1, raw).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to remove event: %w", err)
	}
	return removed, nil
}

// EventCount returns the current log length for a symbol.
func (s *Store) EventCount(ctx context.Context, symbol string) (int64, error) {
	n, err := s.client.LLen(ctx, eventsKey(symbol)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func latestKey(symbol string) string { return Prefix + "latest:" + symbol }

// GetLatest returns the raw latest-evaluation envelope for a symbol, or
// "" when none is stored.
func (s *Store) GetLatest(ctx context.Context, symbol string) (string, error) {
	raw, err := s.client.Get(ctx, latestKey(symbol)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read latest: %w", err)
	}
	return raw, nil
}

// SetLatest writes the latest-evaluation envelope with the 48h TTL.
func (s *Store) SetLatest(ctx context.Context, symbol string, data []byte) error {
	if err := s.client.Set(ctx, latestKey(symbol), data, LatestTTL).Err(); err != nil {
		return fmt.Errorf("failed to write latest: %w", err)
	}
	return nil
}

const configKey = Prefix + "config"

// LoadRuntimeConfig reads tv:config, falling back to the embedded defaults
// when the key is absent or corrupt.
func (s *Store) LoadRuntimeConfig(ctx context.Context) *signal.RuntimeConfig {
	raw, err := s.client.Get(ctx, configKey).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("Failed to read runtime config, using defaults")
		}
		return signal.DefaultRuntimeConfig()
	}

	var cfg signal.RuntimeConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		log.Warn().Err(err).Msg("Corrupt runtime config, using defaults")
		return signal.DefaultRuntimeConfig()
	}
	return &cfg
}

// SaveRuntimeConfig replaces tv:config atomically. No TTL: config persists
// until replaced.
func (s *Store) SaveRuntimeConfig(ctx context.Context, cfg *signal.RuntimeConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := s.client.Set(ctx, configKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// EventsLastMinute sums the rate-limit buckets covering roughly the last
// minute. Used by the health endpoint; errors degrade to a zero count.
func (s *Store) EventsLastMinute(ctx context.Context, windowSec int) int {
	if windowSec <= 0 {
		return 0
	}
	buckets := 60/windowSec + 1
	bucket := time.Now().Unix() / int64(windowSec)

	total := 0
	for offset := 0; offset < buckets; offset++ {
		pattern := fmt.Sprintf("%srate:*:%d", Prefix, bucket-int64(offset))
		iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			val, err := s.client.Get(ctx, iter.Val()).Result()
			if err != nil {
				continue
			}
			if n, err := strconv.Atoi(val); err == nil {
				total += n
			}
		}
		if err := iter.Err(); err != nil {
			log.Debug().Err(err).Msg("Rate bucket scan failed")
			return total
		}
	}
	return total
}
