package pipeline

import "time"

// StageStats 单个阶段的统计结果
type StageStats struct {
	InProgressCount      int     `json:"inProgressCount"`
	CompletedCount       int     `json:"completedCount"`
	TotalCompletionHours float64 `json:"totalCompletionHours"`
}

// Result phase 标签 -> stage 标签 -> 统计
type Result map[string]map[string]StageStats

// Stage 取单个阶段的统计，未出现时返回零值
func (r Result) Stage(phase, stage string) (StageStats, bool) {
	stages, ok := r[phase]
	if !ok {
		return StageStats{}, false
	}
	st, ok := stages[stage]
	return st, ok
}

// Contribution 一个 (项目, 阶段) 组合对结果的贡献
type Contribution struct {
	Phase      string
	Stage      string
	InProgress bool
	Completed  bool
	Duration   time.Duration
}

type tally struct {
	inProgress int
	completed  int
	duration   time.Duration
}

// Assembler 汇总贡献。时长用整数纳秒累加，顺序不影响结果
type Assembler struct {
	phases map[string]map[string]*tally
}

// NewAssembler 每次统计新建一个，不跨请求复用
func NewAssembler() *Assembler {
	return &Assembler{phases: make(map[string]map[string]*tally)}
}

// Add 累加一个贡献，阶段条目在第一次被触及时创建
func (a *Assembler) Add(c Contribution) {
	if !c.InProgress && !c.Completed {
		return
	}
	t := a.entry(c.Phase, c.Stage)
	if c.InProgress {
		t.inProgress++
	}
	if c.Completed {
		t.completed++
		t.duration += c.Duration
	}
}

// Merge 合并另一个 Assembler（并行分片时使用）
func (a *Assembler) Merge(other *Assembler) {
	for phase, stages := range other.phases {
		for stage, src := range stages {
			t := a.entry(phase, stage)
			t.inProgress += src.inProgress
			t.completed += src.completed
			t.duration += src.duration
		}
	}
}

// Result 生成最终结果
func (a *Assembler) Result() Result {
	out := make(Result, len(a.phases))
	for phase, stages := range a.phases {
		m := make(map[string]StageStats, len(stages))
		for stage, t := range stages {
			m[stage] = StageStats{
				InProgressCount:      t.inProgress,
				CompletedCount:       t.completed,
				TotalCompletionHours: t.duration.Hours(),
			}
		}
		out[phase] = m
	}
	return out
}

func (a *Assembler) entry(phase, stage string) *tally {
	stages, ok := a.phases[phase]
	if !ok {
		stages = make(map[string]*tally)
		a.phases[phase] = stages
	}
	t, ok := stages[stage]
	if !ok {
		t = &tally{}
		stages[stage] = t
	}
	return t
}
