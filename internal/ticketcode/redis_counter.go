package ticketcode

import (
	"context"
	"fmt"
	"time"

	"repair_shop_backend/internal/repositories"

	"github.com/redis/go-redis/v9"
)

// RedisCounter keeps one INCR key per prefix and day. Keys expire after ttl so
// old days do not pile up.
type RedisCounter struct {
	client    redis.Cmdable
	namespace string
	ttl       time.Duration
}

func NewRedisCounter(client redis.Cmdable, namespace string, ttl time.Duration) *RedisCounter {
	if namespace == "" {
		namespace = "codeseq"
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisCounter{client: client, namespace: namespace, ttl: ttl}
}

func (c *RedisCounter) key(prefix string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", c.namespace, prefix, day.Format(dateLayout))
}

// Next ignores the executor; Redis INCR is atomic on its own.
func (c *RedisCounter) Next(ctx context.Context, _ repositories.SQLExecutor, prefix string, day time.Time) (int64, error) {
	key := c.key(prefix, day)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

var advanceScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
return 1
`)

// AdvanceTo raises the key to value unless it is already higher.
func (c *RedisCounter) AdvanceTo(ctx context.Context, _ repositories.SQLExecutor, prefix string, day time.Time, value int64) error {
	key := c.key(prefix, day)
	if err := advanceScript.Run(ctx, c.client, []string{key}, value, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis advance %s: %w", key, err)
	}
	return nil
}
