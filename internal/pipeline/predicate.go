package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Predicate 交给存储层的候选过滤条件，同时可以在内存中对原始文档求值
type Predicate interface {
	Match(rec Record) bool
	String() string
}

// And 全部满足；空 And 恒为真
type And []Predicate

// Or 任一满足；空 Or 恒为假
type Or []Predicate

// Between 字段是时间且落在 [From, To] 内
type Between struct {
	Field    Field
	From, To time.Time
}

// Present 字段是有效时间
type Present struct {
	Field Field
}

// Absent 字段缺失、为 null 或不是有效时间
type Absent struct {
	Field Field
}

// Eq 字段的字符串值等于 Value
type Eq struct {
	Field Field
	Value string
}

// In 字段的字符串值属于 Values
type In struct {
	Field  Field
	Values []string
}

func (p And) Match(rec Record) bool {
	for _, c := range p {
		if !c.Match(rec) {
			return false
		}
	}
	return true
}

func (p And) String() string { return joinPredicates("AND", p) }

func (p Or) Match(rec Record) bool {
	for _, c := range p {
		if c.Match(rec) {
			return true
		}
	}
	return false
}

func (p Or) String() string { return joinPredicates("OR", p) }

func (p Between) Match(rec Record) bool {
	t, ok := rec.Time(p.Field)
	return ok && !t.Before(p.From) && !t.After(p.To)
}

func (p Between) String() string {
	return fmt.Sprintf("%s BETWEEN %s AND %s", p.Field, p.From.Format(time.RFC3339Nano), p.To.Format(time.RFC3339Nano))
}

func (p Present) Match(rec Record) bool {
	_, ok := rec.Time(p.Field)
	return ok
}

func (p Present) String() string { return fmt.Sprintf("%s IS PRESENT", p.Field) }

func (p Absent) Match(rec Record) bool {
	_, ok := rec.Time(p.Field)
	return !ok
}

func (p Absent) String() string { return fmt.Sprintf("%s IS ABSENT", p.Field) }

func (p Eq) Match(rec Record) bool {
	v, ok := rec.Text(p.Field)
	return ok && v == p.Value
}

func (p Eq) String() string { return fmt.Sprintf("%s = %q", p.Field, p.Value) }

func (p In) Match(rec Record) bool {
	v, ok := rec.Text(p.Field)
	if !ok {
		return false
	}
	for _, want := range p.Values {
		if v == want {
			return true
		}
	}
	return false
}

func (p In) String() string { return fmt.Sprintf("%s IN (%s)", p.Field, strings.Join(p.Values, ", ")) }

func joinPredicates(op string, ps []Predicate) string {
	if len(ps) == 0 {
		if op == "AND" {
			return "TRUE"
		}
		return "FALSE"
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

// BuildCandidatePredicate 根据阶段表推导候选过滤条件：
// 对每个适用阶段，离开字段落在区间内，或者已进入但尚未离开。
// 条件是保守的：可能多取（之后由 guard 排除），但不会漏掉会被统计的项目。
// scope 由调用方提供（例如合作方可见范围），此处不解析其内容；nil 表示不限制。
func BuildCandidatePredicate(g *Graph, projectType string, w Window, scope Predicate) Predicate {
	var disjuncts Or
	seen := make(map[string]bool)
	add := func(key string, p Predicate) {
		if seen[key] {
			return
		}
		seen[key] = true
		disjuncts = append(disjuncts, p)
	}

	for _, s := range g.StagesFor(projectType) {
		if !w.Empty {
			add("completed:"+string(s.Exit), Between{Field: s.Exit, From: w.Start, To: w.End})
		}
		add("parked:"+string(s.Entry)+">"+string(s.Exit), And{Present{Field: s.Entry}, Absent{Field: s.Exit}})
	}

	pred := And{Eq{Field: FieldType, Value: projectType}, disjuncts}
	if scope != nil {
		pred = append(pred, scope)
	}
	return pred
}
