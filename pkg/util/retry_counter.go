package util

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultRetryTTL 计数器在最后一次失败后保留的时间
const defaultRetryTTL = 24 * time.Hour

// RetryCounter 按事件记录消费失败次数，供 handler 决定重投还是进入 DLQ
type RetryCounter struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRetryCounter(rdb redis.Cmdable, ttl time.Duration) *RetryCounter {
	if ttl <= 0 {
		ttl = defaultRetryTTL
	}
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet 计数加一并刷新过期时间
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// 过期时间设置失败只影响清理，不影响本次计数
	_ = r.rdb.Expire(ctx, key, r.ttl).Err()
	return count, nil
}

// Get 当前计数，不存在时为 0
func (r *RetryCounter) Get(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}

// Reset 处理成功或进入 DLQ 后清除计数
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey retry:<handler>:<eventID>
func FormatRetryKey(handler string, eventID string) string {
	return "retry:" + handler + ":" + eventID
}
