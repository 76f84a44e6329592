package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultStageDuration 进入与离开时间相同或倒置时使用的时长（一个工作日）
const DefaultStageDuration = 8 * time.Hour

// StageStatus 项目在某个阶段上的状态
type StageStatus int

const (
	StatusNotStarted StageStatus = iota
	StatusInProgress
	// StatusHeld 已进入未离开，但 guard 为真（整个 phase 已结束）
	StatusHeld
	StatusCompletedInWindow
	StatusCompletedOutsideWindow
)

func (s StageStatus) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusHeld:
		return "held"
	case StatusCompletedInWindow:
		return "completed_in_window"
	case StatusCompletedOutsideWindow:
		return "completed_outside_window"
	default:
		return "not_started"
	}
}

// Classify 判断项目在阶段上的状态。同一阶段的“进行中”和“区间内完成”互斥（离开时间是否存在）
func Classify(s Snapshot, st Stage, w Window) StageStatus {
	_, hasEntry := s.Milestone(st.Entry)
	exit, hasExit := s.Milestone(st.Exit)

	if hasExit {
		if w.Contains(exit) {
			return StatusCompletedInWindow
		}
		return StatusCompletedOutsideWindow
	}
	if !hasEntry {
		return StatusNotStarted
	}
	if st.Guard != "" && s.Flag(st.Guard) {
		return StatusHeld
	}
	return StatusInProgress
}

// Summary 一次统计处理的记录数
type Summary struct {
	Scanned int `json:"scanned"`
	// Skipped 缺少 id/type 的脏数据
	Skipped int `json:"skipped"`
	// Foreign 类型与请求不一致的记录
	Foreign int `json:"foreign"`
}

func (s *Summary) merge(o Summary) {
	s.Scanned += o.Scanned
	s.Skipped += o.Skipped
	s.Foreign += o.Foreign
}

// Aggregator 按阶段表统计进行中数量、区间内完成数量和完成耗时
type Aggregator struct {
	graph           *Graph
	defaultDuration time.Duration
	logger          *zap.Logger
}

// NewAggregator defaultDuration <= 0 时使用 DefaultStageDuration
func NewAggregator(g *Graph, defaultDuration time.Duration, logger *zap.Logger) *Aggregator {
	if defaultDuration <= 0 {
		defaultDuration = DefaultStageDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		graph:           g,
		defaultDuration: defaultDuration,
		logger:          logger,
	}
}

// Aggregate 单线程统计
func (a *Aggregator) Aggregate(projectType string, w Window, snaps []Snapshot) (Result, Summary) {
	asm := NewAssembler()
	sum, _ := a.aggregateInto(context.Background(), asm, a.graph.StagesFor(projectType), projectType, w, snaps)
	return asm.Result(), sum
}

// AggregateParallel 把项目分片给 workers 个 goroutine，各自统计后合并。结果与 Aggregate 相同；
// ctx 取消时返回 ctx.Err()
func (a *Aggregator) AggregateParallel(ctx context.Context, projectType string, w Window, snaps []Snapshot, workers int) (Result, Summary, error) {
	stages := a.graph.StagesFor(projectType)
	if workers <= 1 || len(snaps) < 2*workers {
		asm := NewAssembler()
		sum, err := a.aggregateInto(ctx, asm, stages, projectType, w, snaps)
		if err != nil {
			return nil, Summary{}, err
		}
		return asm.Result(), sum, nil
	}

	parts := make([]*Assembler, workers)
	sums := make([]Summary, workers)
	chunk := (len(snaps) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		lo := i * chunk
		hi := lo + chunk
		if hi > len(snaps) {
			hi = len(snaps)
		}
		parts[i] = NewAssembler()
		if lo >= hi {
			continue
		}
		i, batch := i, snaps[lo:hi]
		g.Go(func() error {
			var err error
			sums[i], err = a.aggregateInto(gctx, parts[i], stages, projectType, w, batch)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Summary{}, err
	}

	asm := NewAssembler()
	var sum Summary
	for i := range parts {
		asm.Merge(parts[i])
		sum.merge(sums[i])
	}
	return asm.Result(), sum, nil
}

// ctxCheckEvery 每处理这么多条记录检查一次 ctx
const ctxCheckEvery = 1024

func (a *Aggregator) aggregateInto(ctx context.Context, asm *Assembler, stages []Stage, projectType string, w Window, snaps []Snapshot) (Summary, error) {
	var sum Summary
	for i, snap := range snaps {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
		}
		sum.Scanned++
		if !snap.Valid() {
			sum.Skipped++
			a.logger.Warn("Skipping malformed project record",
				zap.String("project_id", snap.ID),
				zap.String("project_type", snap.Type),
			)
			continue
		}
		if snap.Type != projectType {
			sum.Foreign++
			continue
		}
		for _, st := range stages {
			asm.Add(a.contribution(snap, st, w))
		}
	}
	return sum, nil
}

func (a *Aggregator) contribution(snap Snapshot, st Stage, w Window) Contribution {
	c := Contribution{Phase: st.Phase, Stage: st.Label}
	switch Classify(snap, st, w) {
	case StatusInProgress:
		c.InProgress = true
	case StatusCompletedInWindow:
		c.Completed = true
		c.Duration = a.duration(snap, st)
	}
	return c
}

// duration 进入时间缺失时贡献 0；非正数时长按 defaultDuration 计
func (a *Aggregator) duration(snap Snapshot, st Stage) time.Duration {
	entry, hasEntry := snap.Milestone(st.Entry)
	exit, hasExit := snap.Milestone(st.Exit)
	if !hasEntry || !hasExit {
		return 0
	}
	d := exit.Sub(entry)
	if d <= 0 {
		return a.defaultDuration
	}
	return d
}
