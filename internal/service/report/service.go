package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"solarcrm/internal/cache"
	"solarcrm/internal/pipeline"
	"solarcrm/pkg/circuitbreaker"
	"solarcrm/pkg/logger"
	"solarcrm/pkg/metrics"
	"solarcrm/pkg/otel"
	"solarcrm/pkg/rbac"
)

var (
	// ErrUnavailable 存储层熔断中
	ErrUnavailable = errors.New("report backend unavailable")
	// ErrNoScope 非管理员 token 中没有 partner_id
	ErrNoScope = errors.New("caller has no partner scope")
)

// Caller 发起请求的用户（来自 JWT）
type Caller struct {
	UserID    string
	PartnerID string
	Role      string
}

// Request 一次报表请求
type Request struct {
	ProjectType string
	After       string
	Before      string
	Caller      Caller
}

// Response 报表及是否来自缓存
type Response struct {
	Report *pipeline.Report
	Cached bool
}

// Generator handler 依赖的接口
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Graph() *pipeline.Graph
}

// ReportCache *cache.ReportCache 实现
type ReportCache interface {
	Version(ctx context.Context) (int64, error)
	Lookup(ctx context.Context, key string) (*pipeline.Report, bool, error)
	Store(ctx context.Context, key string, rep *pipeline.Report) error
}

type Service struct {
	engine  *pipeline.Engine
	cache   ReportCache
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

var _ Generator = (*Service)(nil)

// NewService reportCache 为 nil 时不使用缓存
func NewService(engine *pipeline.Engine, reportCache ReportCache, breaker *circuitbreaker.CircuitBreaker, timeout time.Duration, logger *zap.Logger) *Service {
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	}
	return &Service{
		engine:  engine,
		cache:   reportCache,
		breaker: breaker,
		timeout: timeout,
		logger:  logger,
	}
}

func (s *Service) Graph() *pipeline.Graph {
	return s.engine.Graph()
}

// Generate 校验参数、查缓存，未命中时在熔断保护下运行引擎
func (s *Service) Generate(ctx context.Context, req Request) (*Response, error) {
	req.ProjectType = strings.TrimSpace(req.ProjectType)
	req.After = strings.TrimSpace(req.After)
	req.Before = strings.TrimSpace(req.Before)
	log := logger.WithTrace(ctx, s.logger)

	if err := s.validate(req); err != nil {
		return nil, err
	}
	scope, scopeKey, err := callerScope(req.Caller)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.StartSpan(ctx, "pipeline.report")
	span.SetAttributes(
		attribute.String("pipeline.project_type", req.ProjectType),
		attribute.String("pipeline.after", req.After),
		attribute.String("pipeline.before", req.Before),
		attribute.String("pipeline.scope", scopeKey),
	)
	start := time.Now()

	key, useCache := s.cacheKey(ctx, req, scopeKey, log)
	if useCache {
		rep, hit, err := s.cache.Lookup(ctx, key)
		switch {
		case err != nil:
			metrics.IncrementReportCache("error")
			log.Warn("Report cache lookup failed", zap.String("key", key), zap.Error(err))
		case hit:
			metrics.IncrementReportCache("hit")
			metrics.RecordPipelineReport(req.ProjectType, "cached", time.Since(start))
			span.SetAttributes(attribute.Bool("pipeline.cached", true))
			otel.EndSpan(span, nil)
			return &Response{Report: rep, Cached: true}, nil
		default:
			metrics.IncrementReportCache("miss")
		}
	}

	rep, err := s.run(ctx, pipeline.Request{
		ProjectType: req.ProjectType,
		After:       req.After,
		Before:      req.Before,
		Scope:       scope,
	})
	otel.EndSpan(span, err)
	if err != nil {
		metrics.RecordPipelineReport(req.ProjectType, outcome(err), time.Since(start))
		return nil, err
	}

	metrics.RecordPipelineReport(req.ProjectType, "ok", time.Since(start))
	metrics.AddPipelineRecords(req.ProjectType, rep.Summary.Scanned, rep.Summary.Skipped)

	if useCache {
		if err := s.cache.Store(ctx, key, rep); err != nil {
			log.Warn("Failed to store report in cache", zap.String("key", key), zap.Error(err))
		}
	}
	return &Response{Report: rep}, nil
}

func (s *Service) validate(req Request) error {
	missing := make([]string, 0, 3)
	if req.ProjectType == "" {
		missing = append(missing, "projectType")
	}
	if req.After == "" {
		missing = append(missing, "after")
	}
	if req.Before == "" {
		missing = append(missing, "before")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", pipeline.ErrInvalidParameter, strings.Join(missing, ", "))
	}
	if !s.engine.Graph().Knows(req.ProjectType) {
		return fmt.Errorf("%w: unknown project type %q", pipeline.ErrInvalidParameter, req.ProjectType)
	}
	return nil
}

// callerScope 管理员不限范围，其他角色只能看自己合作方的项目
func callerScope(c Caller) (pipeline.Predicate, string, error) {
	if c.Role == rbac.RoleAdmin {
		return nil, cache.ScopeAll, nil
	}
	if c.PartnerID == "" {
		return nil, "", ErrNoScope
	}
	return pipeline.Eq{Field: pipeline.FieldPartnerID, Value: c.PartnerID}, c.PartnerID, nil
}

func (s *Service) cacheKey(ctx context.Context, req Request, scopeKey string, log *zap.Logger) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	version, err := s.cache.Version(ctx)
	if err != nil {
		metrics.IncrementReportCache("error")
		log.Warn("Report cache version unavailable, bypassing cache", zap.Error(err))
		return "", false
	}
	return cache.Key(version, cache.Query{
		ProjectType: req.ProjectType,
		After:       req.After,
		Before:      req.Before,
		Scope:       scopeKey,
		Options:     s.engine.Fingerprint(),
	}), true
}

func (s *Service) run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var rep *pipeline.Report
	err := s.breaker.Execute(func() error {
		var err error
		rep, err = s.engine.Run(ctx, req)
		return err
	}, pipeline.IsInvalidParameter)
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		logger.WithTrace(ctx, s.logger).Warn("Pipeline report rejected, circuit breaker open",
			zap.String("project_type", req.ProjectType),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return rep, err
}

func outcome(err error) string {
	switch {
	case pipeline.IsInvalidParameter(err):
		return "invalid"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case pipeline.IsRetrievalFailure(err):
		return "retrieval_error"
	default:
		return "error"
	}
}
