package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// busyCacheTTL keeps cached busy intervals only briefly: the external
// calendar can change at any time, staleness beyond the TTL is the only
// consistency requirement.
const busyCacheTTL = 2 * time.Minute

// BusyCache is a read-through cache for free/busy query results, keyed by
// the full query shape. Safe for concurrent use; a nil redis client disables
// caching.
type BusyCache struct {
	redis *redis.Client
}

// NewBusyCache creates a busy-interval cache.
func NewBusyCache(redisClient *redis.Client) *BusyCache {
	return &BusyCache{redis: redisClient}
}

func (c *BusyCache) key(accountID, calendarID string, timeMin, timeMax time.Time, timeZone string) string {
	return fmt.Sprintf("availability:%s:%s:%d:%d:%s",
		accountID, calendarID, timeMin.Unix(), timeMax.Unix(), timeZone)
}

// Get returns cached intervals and whether the key was present. Cache errors
// are returned so callers can log them, but a miss is not an error.
func (c *BusyCache) Get(ctx context.Context, accountID, calendarID string, timeMin, timeMax time.Time, timeZone string) ([]BusyInterval, bool, error) {
	if c == nil || c.redis == nil {
		return nil, false, nil
	}
	data, err := c.redis.Get(ctx, c.key(accountID, calendarID, timeMin, timeMax, timeZone)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("calendar: busy cache get: %w", err)
	}

	var intervals []BusyInterval
	if err := json.Unmarshal(data, &intervals); err != nil {
		return nil, false, fmt.Errorf("calendar: busy cache decode: %w", err)
	}
	return intervals, true, nil
}

// Set stores intervals under the query key with the cache TTL.
func (c *BusyCache) Set(ctx context.Context, accountID, calendarID string, timeMin, timeMax time.Time, timeZone string, intervals []BusyInterval) error {
	if c == nil || c.redis == nil {
		return nil
	}
	data, err := json.Marshal(intervals)
	if err != nil {
		return fmt.Errorf("calendar: busy cache encode: %w", err)
	}
	if err := c.redis.Set(ctx, c.key(accountID, calendarID, timeMin, timeMax, timeZone), data, busyCacheTTL).Err(); err != nil {
		return fmt.Errorf("calendar: busy cache set: %w", err)
	}
	return nil
}
