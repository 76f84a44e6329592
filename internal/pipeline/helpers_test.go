package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// doc 构造嵌套的原始文档，fields 使用点分路径
func doc(id, projectType string, fields map[Field]any) Record {
	r := Record{}
	if id != "" {
		r["id"] = id
	}
	if projectType != "" {
		r["type"] = projectType
	}
	for f, v := range fields {
		parts := strings.Split(string(f), ".")
		cur := map[string]any(r)
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = v
	}
	return r
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func januaryWindow(t *testing.T) Window {
	t.Helper()
	w, err := NewWindowResolver().Resolve("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	return w
}
