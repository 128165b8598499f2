package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DedupeTTL is the window within which an event id is admitted only once.
const DedupeTTL = 600 * time.Second

// IsDuplicate atomically claims tv:dedupe:{eventID} with the dedupe TTL.
// Returns true when the key already existed, i.e. the event was seen
// within the last ten minutes.
func (s *Store) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	set, err := s.client.SetNX(ctx, Prefix+"dedupe:"+eventID, "1", DedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe check failed: %w", err)
	}
	return !set, nil
}

// RateLimitExceeded increments the symbol's current rate bucket and
// reports whether the admission budget is spent. The bucket index is
// floor(now/window); the key expires after two windows, approximating a
// sliding window.
func (s *Store) RateLimitExceeded(ctx context.Context, symbol string, windowSec, maxEvents int) (bool, error) {
	bucket := time.Now().Unix() / int64(windowSec)
	key := fmt.Sprintf("%srate:%s:%d", Prefix, symbol, bucket)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr failed: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, time.Duration(windowSec*2)*time.Second).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire failed: %w", err)
		}
	}

	if count > int64(maxEvents) {
		log.Warn().
			Str("symbol", symbol).
			Int64("count", count).
			Int("window_sec", windowSec).
			Msg("rate_limit_exceeded")
		return true, nil
	}
	return false, nil
}
