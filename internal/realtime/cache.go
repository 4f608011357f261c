// Package realtime mirrors the latest accepted measurement per device into
// Redis so dashboards can read current values without touching the store.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ruuviair/internal/protocol"
)

// keyPrefix namespaces the per-device latest-measurement keys.
const keyPrefix = "ruuvi:latest:"

// entryTTL expires entries from devices that went silent, so the cache never
// serves hours-old values as "current".
const entryTTL = 15 * time.Minute

// Cache publishes latest measurements to Redis.
type Cache struct {
	client *redis.Client
}

// New creates a cache on an existing Redis client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// PublishLatest overwrites the device's latest-measurement entry.
func (c *Cache) PublishLatest(ctx context.Context, m *protocol.Measurement) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal measurement: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+m.DeviceID, payload, entryTTL).Err(); err != nil {
		return fmt.Errorf("failed to set latest measurement: %w", err)
	}
	return nil
}

// Latest reads a device's cached measurement, or nil when absent/expired.
func (c *Cache) Latest(ctx context.Context, deviceID string) (*protocol.Measurement, error) {
	payload, err := c.client.Get(ctx, keyPrefix+deviceID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest measurement: %w", err)
	}
	var m protocol.Measurement
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal measurement: %w", err)
	}
	return &m, nil
}
