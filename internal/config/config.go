package config

import (
	"fmt"
	"time"

	"solarcrm/internal/pipeline"
	"solarcrm/pkg/circuitbreaker"
	"solarcrm/pkg/config"
)

type Config struct {
	LogLevel string                `yaml:"log_level"`
	Server   config.ServerConfig   `yaml:"server"`
	DB       config.DBConfig       `yaml:"db"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQ       config.MQConfig       `yaml:"mq"`
	JWT      config.JWTConfig      `yaml:"jwt"`
	Otel     config.OtelConfig     `yaml:"otel"`
	Pipeline PipelineConfig        `yaml:"pipeline"`
	Cache    CacheConfig           `yaml:"cache"`
	Breaker  circuitbreaker.Config `yaml:"breaker"`
	Outbox   OutboxConfig          `yaml:"outbox"`
	Events   EventsConfig          `yaml:"events"`
}

// PipelineConfig 阶段统计参数
type PipelineConfig struct {
	// DefaultDurationHours 进入与离开时间相同或倒置时计入的小时数
	DefaultDurationHours float64 `yaml:"default_duration_hours"`
	// WindowPolicy after > before 时的处理：reject | empty
	WindowPolicy string `yaml:"window_policy"`
	// UTCOffsetHours 业务时区，未配置时为 -3
	UTCOffsetHours *float64 `yaml:"utc_offset_hours"`
	Workers        int      `yaml:"workers"`
	// QueryTimeout 单次统计的超时时间
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// CacheConfig 报表缓存
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// OutboxConfig outbox dispatcher
type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// EventsConfig project.updated 消费者
type EventsConfig struct {
	Queue      string        `yaml:"queue"`
	DedupTTL   time.Duration `yaml:"dedup_ttl"`
	MaxRetries int64         `yaml:"max_retries"`
}

// EngineOptions 转换为引擎配置
func (p PipelineConfig) EngineOptions() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()

	policy, err := pipeline.ParseWindowPolicy(p.WindowPolicy)
	if err != nil {
		return opts, err
	}
	opts.Policy = policy

	if p.UTCOffsetHours != nil {
		if *p.UTCOffsetHours < -14 || *p.UTCOffsetHours > 14 {
			return opts, fmt.Errorf("pipeline.utc_offset_hours out of range: %v", *p.UTCOffsetHours)
		}
		opts.Offset = hours(*p.UTCOffsetHours)
	}
	if p.DefaultDurationHours < 0 {
		return opts, fmt.Errorf("pipeline.default_duration_hours must not be negative: %v", p.DefaultDurationHours)
	}
	if p.DefaultDurationHours > 0 {
		opts.DefaultDuration = hours(p.DefaultDurationHours)
	}
	if p.Workers > 0 {
		opts.Workers = p.Workers
	}
	return opts, nil
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// Default 未出现在配置文件中的项使用的值
func Default() Config {
	return Config{
		LogLevel: "info",
		Server:   config.ServerConfig{Port: "8080"},
		DB:       config.DBConfig{Host: "localhost", Port: 5432, SSLMode: "disable", MaxConns: 10, SlowQueryMS: 200},
		Redis:    config.RedisConfig{Addr: "localhost:6379"},
		Pipeline: PipelineConfig{
			DefaultDurationHours: 8,
			WindowPolicy:         string(pipeline.WindowPolicyReject),
			Workers:              1,
			QueryTimeout:         30 * time.Second,
		},
		Cache:   CacheConfig{Enabled: true, TTL: 5 * time.Minute},
		Breaker: circuitbreaker.DefaultConfig(),
		Outbox:  OutboxConfig{Interval: time.Second, BatchSize: 100, MaxRetries: 5},
		Events:  EventsConfig{Queue: "solarcrm.project.updated.q", DedupTTL: 24 * time.Hour, MaxRetries: 5},
	}
}

// Load 读取 configDir 下的 base.yaml 和 <env>.yaml，再用环境变量覆盖
func Load(env, configDir string) (*Config, error) {
	raw, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := config.Decode(raw, &cfg); err != nil {
		return nil, err
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOtelFromEnv(&cfg.Otel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 启动前检查
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if _, err := c.Pipeline.EngineOptions(); err != nil {
		return err
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when cache is enabled")
	}
	return nil
}
