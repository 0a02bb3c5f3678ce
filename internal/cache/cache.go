// Package cache provides a Redis-backed cache for uplink deduplication and
// latest-reading lookups. A nil *Cache is valid and disables caching.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/getdatasurge/frostguard/internal/app/domain/reading"
)

// DedupTTL bounds how long an uplink fingerprint is remembered.
const DedupTTL = 24 * time.Hour

// LatestTTL bounds how long a cached latest reading stays valid.
const LatestTTL = 6 * time.Hour

// Cache wraps a Redis client.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{client: client}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func dedupKey(deviceID string, recordedAt time.Time) string {
	return fmt.Sprintf("fg:dedup:%s:%d", deviceID, recordedAt.Unix())
}

// MarkUplink records an uplink fingerprint and reports whether it was already
// present. The check-and-set is atomic via SETNX.
func (c *Cache) MarkUplink(ctx context.Context, deviceID string, recordedAt time.Time) (seen bool, err error) {
	if c == nil {
		return false, nil
	}
	set, err := c.client.SetNX(ctx, dedupKey(deviceID, recordedAt), 1, DedupTTL).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// ClearUplink drops an uplink fingerprint so the network server's retry is
// not treated as a duplicate after a failed write.
func (c *Cache) ClearUplink(ctx context.Context, deviceID string, recordedAt time.Time) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, dedupKey(deviceID, recordedAt)).Err()
}

// SetLatest caches the newest reading for a unit.
func (c *Cache) SetLatest(ctx context.Context, r reading.Reading) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "fg:latest:"+r.UnitID, raw, LatestTTL).Err()
}

// Latest returns the cached newest reading for a unit. The second return is
// false on a miss.
func (c *Cache) Latest(ctx context.Context, unitID string) (reading.Reading, bool, error) {
	if c == nil {
		return reading.Reading{}, false, nil
	}
	raw, err := c.client.Get(ctx, "fg:latest:"+unitID).Bytes()
	if err == redis.Nil {
		return reading.Reading{}, false, nil
	}
	if err != nil {
		return reading.Reading{}, false, err
	}
	var r reading.Reading
	if err := json.Unmarshal(raw, &r); err != nil {
		return reading.Reading{}, false, err
	}
	return r, true, nil
}
