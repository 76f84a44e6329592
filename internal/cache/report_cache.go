package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solarcrm/internal/pipeline"
)

const (
	keyPrefix  = "pipeline:report"
	versionKey = keyPrefix + ":version"
	// ScopeAll 不限合作方
	ScopeAll = "*"
)

// Query 缓存键的组成部分
type Query struct {
	ProjectType string
	After       string
	Before      string
	// Scope 合作方 ID，管理员为 ScopeAll
	Scope string
	// Options 引擎配置摘要，配置变化后不再命中旧报表
	Options string
}

// ReportCache Redis 中的报表副本。项目文档变化时递增版本号，旧版本的键自然过期
type ReportCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewReportCache(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *ReportCache {
	return &ReportCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Key pipeline:report:v<version>:<options>:<type>:<after>:<before>:<scope>
func Key(version int64, q Query) string {
	scope := q.Scope
	if scope == "" {
		scope = ScopeAll
	}
	opts := q.Options
	if opts == "" {
		opts = "-"
	}
	return fmt.Sprintf("%s:v%d:%s:%s:%s:%s:%s",
		keyPrefix, version, escape(opts),
		escape(q.ProjectType), escape(q.After), escape(q.Before), escape(scope))
}

// escape 防止值中的冒号打乱键结构
func escape(s string) string {
	return strings.ReplaceAll(s, ":", "%3A")
}

// Version 当前版本号，未设置时为 0
func (c *ReportCache) Version(ctx context.Context) (int64, error) {
	v, err := c.rdb.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Lookup 命中时返回报表
func (c *ReportCache) Lookup(ctx context.Context, key string) (*pipeline.Report, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rep pipeline.Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		c.logger.Warn("Dropping undecodable cached report", zap.String("key", key), zap.Error(err))
		c.rdb.Del(ctx, key)
		return nil, false, nil
	}
	return &rep, true, nil
}

// Store 写入报表
func (c *ReportCache) Store(ctx context.Context, key string, rep *pipeline.Report) error {
	raw, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate 递增版本号，之后的查询不再命中旧报表
func (c *ReportCache) Invalidate(ctx context.Context) (int64, error) {
	v, err := c.rdb.Incr(ctx, versionKey).Result()
	if err != nil {
		return 0, fmt.Errorf("bump report cache version: %w", err)
	}
	c.logger.Debug("Report cache invalidated", zap.Int64("version", v))
	return v, nil
}
