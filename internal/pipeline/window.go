package pipeline

import (
	"fmt"
	"time"
)

// DateLayout 调用方传入的日期格式
const DateLayout = "2006-01-02"

// DefaultUTCOffset 业务所在时区（UTC-3），里程碑时间按本地时间录入
const DefaultUTCOffset = -3 * time.Hour

// WindowPolicy after 晚于 before 时的处理方式
type WindowPolicy string

const (
	// WindowPolicyReject 返回 ErrInvalidWindow
	WindowPolicyReject WindowPolicy = "reject"
	// WindowPolicyEmpty 返回空区间：没有项目在区间内完成，进行中照常统计
	WindowPolicyEmpty WindowPolicy = "empty"
)

// ParseWindowPolicy 解析配置中的策略名，空字符串为 reject
func ParseWindowPolicy(s string) (WindowPolicy, error) {
	switch WindowPolicy(s) {
	case "", WindowPolicyReject:
		return WindowPolicyReject, nil
	case WindowPolicyEmpty:
		return WindowPolicyEmpty, nil
	default:
		return "", fmt.Errorf("unknown window policy %q", s)
	}
}

// Window 统计区间，首尾都包含
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Empty bool      `json:"empty,omitempty"`
}

// Contains 判断时间点是否落在区间内（含边界）
func (w Window) Contains(t time.Time) bool {
	if w.Empty {
		return false
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// WindowResolver 把两个日历日期换算为绝对时间边界
type WindowResolver struct {
	// Offset 业务时区相对 UTC 的固定偏移，不处理夏令时
	Offset time.Duration
	Policy WindowPolicy
}

// NewWindowResolver 使用默认偏移和 reject 策略
func NewWindowResolver() WindowResolver {
	return WindowResolver{Offset: DefaultUTCOffset, Policy: WindowPolicyReject}
}

// Resolve start = after 当日零点 - offset，end = before 当日最后一微秒 - offset。
// end 取微秒精度，与 PostgreSQL timestamptz 一致
func (r WindowResolver) Resolve(after, before string) (Window, error) {
	a, err := time.ParseInLocation(DateLayout, after, time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("%w: after %q is not a valid date", ErrInvalidWindow, after)
	}
	b, err := time.ParseInLocation(DateLayout, before, time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("%w: before %q is not a valid date", ErrInvalidWindow, before)
	}

	w := Window{
		Start: a.Add(-r.Offset),
		End:   b.Add(24*time.Hour - time.Microsecond).Add(-r.Offset),
	}

	if a.After(b) {
		if r.Policy == WindowPolicyEmpty {
			w.Empty = true
			return w, nil
		}
		return Window{}, fmt.Errorf("%w: after %s is later than before %s", ErrInvalidWindow, after, before)
	}
	return w, nil
}
