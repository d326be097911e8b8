package api

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is an optional redis-backed response cache for the KPI endpoints.
// The views are precomputed and refreshed per batch, so a short TTL is
// plenty. A nil Cache disables caching entirely.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCacheFromEnv returns nil unless REDIS_ADDR is set.
func NewCacheFromEnv() *Cache {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil
	}

	ttl := 60 * time.Second
	if v := strings.TrimSpace(os.Getenv("KPI_CACHE_TTL_SECONDS")); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			ttl = d
		}
	}

	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		}),
		ttl: ttl,
	}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	body, err := c.client.Get(ctx, "kpi:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	return body, true
}

// SetJSON best-effort stores a response; cache failures never surface to the
// caller.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	body, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(ctx, "kpi:"+key, body, c.ttl)
}
