package pipeline

import (
	"strconv"
	"time"
)

// Record 存储层返回的原始项目文档（已解码的 JSON 对象）
type Record map[string]any

// Lookup 按路径取值，中间层缺失或类型不对时返回 false
func (r Record) Lookup(f Field) (any, bool) {
	var cur any = map[string]any(r)
	for _, key := range f.Path() {
		m, ok := cur.(map[string]any)
		if !ok {
			if rm, isRec := cur.(Record); isRec {
				m = rm
			} else {
				return nil, false
			}
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// Time 读取时间字段；不在 timeLayouts 中的字符串或其他类型视为缺失
func (r Record) Time(f Field) (time.Time, bool) {
	v, ok := r.Lookup(f)
	if !ok {
		return time.Time{}, false
	}
	return parseTime(v)
}

// Text 读取字符串字段，数字按十进制格式化
func (r Record) Text(f Field) (string, bool) {
	v, ok := r.Lookup(f)
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, val != ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}

// Bool 读取布尔字段
func (r Record) Bool(f Field) (bool, bool) {
	v, ok := r.Lookup(f)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// timeLayouts 接受的 ISO-8601 时间戳，秒和小数秒可省略，必须带时区
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

func parseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val, true
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return *val, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Snapshot 引擎使用的精简项目视图：只保留身份字段、阶段标记和阶段表引用的里程碑
type Snapshot struct {
	ID         string
	Type       string
	PartnerID  string
	Milestones map[Field]time.Time
	Flags      map[Field]bool
}

// Milestone 取里程碑，缺失时 ok 为 false
func (s Snapshot) Milestone(f Field) (time.Time, bool) {
	t, ok := s.Milestones[f]
	return t, ok
}

// Flag 取标记，缺失视为 false
func (s Snapshot) Flag(f Field) bool {
	return s.Flags[f]
}

// Valid 缺少 id 或 type 的记录无法归属，聚合时跳过
func (s Snapshot) Valid() bool {
	return s.ID != "" && s.Type != ""
}

// Project 把原始文档映射为 Snapshot；不会失败，缺失或无法识别的字段一律视为缺失
func Project(rec Record, g *Graph) Snapshot {
	s := Snapshot{
		Milestones: make(map[Field]time.Time),
		Flags:      make(map[Field]bool),
	}
	s.ID, _ = rec.Text(FieldID)
	s.Type, _ = rec.Text(FieldType)
	s.PartnerID, _ = rec.Text(FieldPartnerID)

	guards := make(map[Field]bool)
	for _, st := range g.Stages() {
		if st.Guard != "" {
			guards[st.Guard] = true
		}
	}

	for _, f := range g.Fields() {
		switch {
		case f == FieldID || f == FieldType || f == FieldPartnerID:
			continue
		case guards[f]:
			if b, ok := rec.Bool(f); ok && b {
				s.Flags[f] = true
			}
		default:
			if t, ok := rec.Time(f); ok {
				s.Milestones[f] = t
			}
		}
	}
	return s
}

// ProjectAll 批量映射
func ProjectAll(recs []Record, g *Graph) []Snapshot {
	out := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Project(rec, g))
	}
	return out
}
