package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Retriever 存储层：按候选条件取回原始文档，fields 为需要投影的字段
type Retriever interface {
	FetchCandidates(ctx context.Context, pred Predicate, fields []Field) ([]Record, error)
}

// RetrieverFunc 函数适配器
type RetrieverFunc func(ctx context.Context, pred Predicate, fields []Field) ([]Record, error)

func (f RetrieverFunc) FetchCandidates(ctx context.Context, pred Predicate, fields []Field) ([]Record, error) {
	return f(ctx, pred, fields)
}

// Request 一次统计请求
type Request struct {
	ProjectType string
	After       string
	Before      string
	// Scope 可见范围过滤，由调用方提供，nil 表示不限制
	Scope Predicate
}

// Report 统计结果及处理信息
type Report struct {
	Result  Result  `json:"result"`
	Summary Summary `json:"summary"`
	Window  Window  `json:"window"`
}

// Options 引擎配置
type Options struct {
	Offset          time.Duration
	Policy          WindowPolicy
	DefaultDuration time.Duration
	Workers         int
}

// DefaultOptions UTC-3、reject、8 小时、单线程
func DefaultOptions() Options {
	return Options{
		Offset:          DefaultUTCOffset,
		Policy:          WindowPolicyReject,
		DefaultDuration: DefaultStageDuration,
		Workers:         1,
	}
}

// Fingerprint 影响统计结果的配置摘要，用于区分缓存。Workers 不影响结果，不参与
func (o Options) Fingerprint() string {
	policy := o.Policy
	if policy == "" {
		policy = WindowPolicyReject
	}
	d := o.DefaultDuration
	if d <= 0 {
		d = DefaultStageDuration
	}
	return fmt.Sprintf("o%d.%s.d%d", int64(o.Offset/time.Minute), policy, int64(d/time.Minute))
}

// Engine 串联区间解析、候选条件、投影和聚合。无状态，可并发调用
type Engine struct {
	graph       *Graph
	retriever   Retriever
	resolver    WindowResolver
	aggregator  *Aggregator
	workers     int
	fingerprint string
	logger      *zap.Logger
}

// NewEngine 创建引擎
func NewEngine(g *Graph, retriever Retriever, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Policy == "" {
		opts.Policy = WindowPolicyReject
	}
	return &Engine{
		graph:       g,
		retriever:   retriever,
		resolver:    WindowResolver{Offset: opts.Offset, Policy: opts.Policy},
		aggregator:  NewAggregator(g, opts.DefaultDuration, logger),
		workers:     opts.Workers,
		fingerprint: opts.Fingerprint(),
		logger:      logger,
	}
}

// Graph 返回引擎使用的阶段表
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Fingerprint 见 Options.Fingerprint
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

// Run 执行一次统计。参数错误返回 ErrInvalidParameter，存储层错误包装为 RetrievalError
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	if req.ProjectType == "" {
		return nil, fmt.Errorf("%w: project type is required", ErrInvalidParameter)
	}

	w, err := e.resolver.Resolve(req.After, req.Before)
	if err != nil {
		return nil, err
	}

	pred := BuildCandidatePredicate(e.graph, req.ProjectType, w, req.Scope)
	e.logger.Debug("Fetching pipeline candidates",
		zap.String("project_type", req.ProjectType),
		zap.Time("window_start", w.Start),
		zap.Time("window_end", w.End),
		zap.Bool("window_empty", w.Empty),
		zap.String("predicate", pred.String()),
	)

	recs, err := e.retriever.FetchCandidates(ctx, pred, e.graph.Fields())
	if err != nil {
		return nil, &RetrievalError{Err: err}
	}

	snaps := ProjectAll(recs, e.graph)
	result, sum, err := e.aggregator.AggregateParallel(ctx, req.ProjectType, w, snaps, e.workers)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Pipeline stages aggregated",
		zap.String("project_type", req.ProjectType),
		zap.Int("scanned", sum.Scanned),
		zap.Int("skipped", sum.Skipped),
		zap.Int("foreign", sum.Foreign),
		zap.Int("phases", len(result)),
	)

	return &Report{Result: result, Summary: sum, Window: w}, nil
}
