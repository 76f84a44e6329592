package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// HeaderName HTTP 请求头中的 trace id
const HeaderName = "X-Trace-ID"

type ctxKey struct{}

// GenerateTraceID 生成一个新的 trace ID（32 位十六进制）
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// Ensure 请求未携带 trace id 时生成一个
func Ensure(ctx context.Context, headerValue string) (context.Context, string) {
	traceID := strings.TrimSpace(headerValue)
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return WithContext(ctx, traceID), traceID
}
