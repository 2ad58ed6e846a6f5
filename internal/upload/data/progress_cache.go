package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/scenehub/scenehub-backend/internal/pkg/redis"
	"github.com/scenehub/scenehub-backend/internal/upload/biz"
)

const progressKeyFormat = "upload:session:%s:progress"

// ProgressCache stores per-session progress in redis so polling clients do
// not hit the database. Writes carry the session's remaining TTL.
type ProgressCache struct {
	client *redis.Client
}

// NewProgressCache creates the redis-backed progress cache
func NewProgressCache(client *redis.Client) biz.ProgressCache {
	return &ProgressCache{client: client}
}

func (c *ProgressCache) SetProgress(ctx context.Context, sessionID string, pct float64, ttl time.Duration) error {
	key := fmt.Sprintf(progressKeyFormat, sessionID)
	return c.client.Set(ctx, key, strconv.FormatFloat(pct, 'f', 2, 64), ttl)
}

// GetProgress returns the cached progress and whether it was present.
func (c *ProgressCache) GetProgress(ctx context.Context, sessionID string) (float64, bool, error) {
	key := fmt.Sprintf(progressKeyFormat, sessionID)
	val, err := c.client.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	pct, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, err
	}
	return pct, true, nil
}
