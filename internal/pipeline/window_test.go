package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowResolver_AppliesOffset(t *testing.T) {
	w, err := NewWindowResolver().Resolve("2024-01-01", "2024-01-31")
	require.NoError(t, err)

	assert.Equal(t, mustTime(t, "2024-01-01T03:00:00Z"), w.Start)
	assert.Equal(t, mustTime(t, "2024-02-01T03:00:00Z").Add(-time.Microsecond), w.End)
	assert.False(t, w.Empty)
}

func TestWindowResolver_SingleDay(t *testing.T) {
	r := WindowResolver{Offset: 0, Policy: WindowPolicyReject}
	w, err := r.Resolve("2024-03-10", "2024-03-10")
	require.NoError(t, err)

	assert.True(t, w.Contains(mustTime(t, "2024-03-10T00:00:00Z")))
	assert.True(t, w.Contains(mustTime(t, "2024-03-10T23:59:59Z")))
	assert.False(t, w.Contains(mustTime(t, "2024-03-11T00:00:00Z")))
}

func TestWindow_ContainsIsInclusive(t *testing.T) {
	w := januaryWindow(t)
	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.Start.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(w.End.Add(time.Nanosecond)))
}

func TestWindowResolver_EndHasMicrosecondPrecision(t *testing.T) {
	w := januaryWindow(t)
	assert.Equal(t, w.End, w.End.Truncate(time.Microsecond))

	// PostgreSQL 把 .9999996 舍入到下一秒，这里也必须落在区间外
	lastMicro := mustTime(t, "2024-02-01T02:59:59.999999Z")
	assert.True(t, w.Contains(lastMicro))
	assert.False(t, w.Contains(lastMicro.Add(600*time.Nanosecond)))
}

func TestWindowResolver_InvalidDates(t *testing.T) {
	r := NewWindowResolver()

	_, err := r.Resolve("2024-13-01", "2024-01-31")
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = r.Resolve("2024-01-01", "31/01/2024")
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = r.Resolve("", "")
	assert.True(t, IsInvalidParameter(err))
}

func TestWindowResolver_ReversedWindow(t *testing.T) {
	_, err := NewWindowResolver().Resolve("2024-02-01", "2024-01-01")
	assert.ErrorIs(t, err, ErrInvalidWindow)

	r := WindowResolver{Offset: DefaultUTCOffset, Policy: WindowPolicyEmpty}
	w, err := r.Resolve("2024-02-01", "2024-01-01")
	require.NoError(t, err)
	assert.True(t, w.Empty)
	assert.False(t, w.Contains(mustTime(t, "2024-01-15T12:00:00Z")))
}

func TestParseWindowPolicy(t *testing.T) {
	p, err := ParseWindowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, WindowPolicyReject, p)

	p, err = ParseWindowPolicy("empty")
	require.NoError(t, err)
	assert.Equal(t, WindowPolicyEmpty, p)

	_, err = ParseWindowPolicy("swap")
	assert.Error(t, err)
}
