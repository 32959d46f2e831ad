// Package redis provides the compute service's hot cache: the latest bar and
// a trimmed list of recent bars per series, fronted by a circuit breaker so
// a flapping Redis never stalls ingest.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chartlinkv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	recentMaxLen = 1000
	latestTTL    = 30 * time.Minute
)

// Cache wraps a Redis client for bar storage.
type Cache struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// New creates a Cache and pings the server.
func New(addr, password string) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", addr)
	return &Cache{client: client}, nil
}

// WriteBar stores bar as the series' latest and prepends it to the recent
// list, trimmed to recentMaxLen.
func (c *Cache) WriteBar(ctx context.Context, bar model.Bar) error {
	data := bar.JSON()
	key := bar.SeriesKey()

	pipe := c.client.Pipeline()
	pipe.Set(ctx, "bars:latest:"+key, data, latestTTL)
	pipe.LPush(ctx, "bars:recent:"+key, data)
	pipe.LTrim(ctx, "bars:recent:"+key, 0, recentMaxLen-1)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis write bar: %w", err)
	}
	return nil
}

// LatestBar returns the series' most recent bar, or ok=false if absent.
func (c *Cache) LatestBar(ctx context.Context, seriesKey string) (model.Bar, bool, error) {
	data, err := c.client.Get(ctx, "bars:latest:"+seriesKey).Bytes()
	if err == goredis.Nil {
		return model.Bar{}, false, nil
	}
	if err != nil {
		return model.Bar{}, false, fmt.Errorf("redis get latest: %w", err)
	}
	var bar model.Bar
	if err := json.Unmarshal(data, &bar); err != nil {
		return model.Bar{}, false, fmt.Errorf("decode latest bar: %w", err)
	}
	return bar, true, nil
}

// RecentBars returns up to n recent bars for the series, newest first.
func (c *Cache) RecentBars(ctx context.Context, seriesKey string, n int) ([]model.Bar, error) {
	raw, err := c.client.LRange(ctx, "bars:recent:"+seriesKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange recent: %w", err)
	}
	bars := make([]model.Bar, 0, len(raw))
	for _, item := range raw {
		var bar model.Bar
		if err := json.Unmarshal([]byte(item), &bar); err != nil {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
