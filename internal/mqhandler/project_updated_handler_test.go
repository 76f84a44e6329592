package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solarcrm/internal/model"
)

type fakeInvalidator struct {
	version int64
	errs    []error
	calls   int
}

func (f *fakeInvalidator) Invalidate(context.Context) (int64, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.version++
	return f.version, nil
}

type fakeDeduper struct {
	seen     map[string]bool
	released []string
}

func (f *fakeDeduper) AcquireOnce(_ context.Context, _ string, eventID string) bool {
	if f.seen[eventID] {
		return false
	}
	f.seen[eventID] = true
	return true
}

func (f *fakeDeduper) Release(_ context.Context, _ string, eventID string) {
	delete(f.seen, eventID)
	f.released = append(f.released, eventID)
}

type fakeCounter struct {
	counts map[string]int64
}

func (f *fakeCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounter) Reset(_ context.Context, key string) error {
	delete(f.counts, key)
	return nil
}

type dlqMessage struct {
	routingKey string
	payload    []byte
	reason     string
}

type fakeDLQ struct {
	msgs []dlqMessage
}

func (f *fakeDLQ) PublishToDLQ(_ context.Context, routingKey string, payload []byte, reason string) error {
	f.msgs = append(f.msgs, dlqMessage{routingKey, payload, reason})
	return nil
}

type fixture struct {
	cache   *fakeInvalidator
	deduper *fakeDeduper
	counter *fakeCounter
	dlq     *fakeDLQ
	h       *ProjectUpdatedHandler
}

func newFixture(maxRetries int64) *fixture {
	f := &fixture{
		cache:   &fakeInvalidator{},
		deduper: &fakeDeduper{seen: map[string]bool{}},
		counter: &fakeCounter{counts: map[string]int64{}},
		dlq:     &fakeDLQ{},
	}
	f.h = NewProjectUpdatedHandler(f.cache, f.deduper, f.counter, f.dlq, maxRetries, zap.NewNop())
	return f
}

func payload(t *testing.T, eventID string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(model.ProjectUpdatedPayload{
		EventID: eventID, ProjectID: "prj-1", PartnerID: "p-1", Type: "RURAL", TraceID: "t-1",
	})
	require.NoError(t, err)
	return raw
}

var errRedisDown = errors.New("dial tcp 127.0.0.1:6379: connection refused")

func TestHandle_InvalidatesOnce(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	require.NoError(t, f.h.Handle(ctx, payload(t, "ev-1")))
	require.NoError(t, f.h.Handle(ctx, payload(t, "ev-1")))
	assert.Equal(t, 1, f.cache.calls)

	require.NoError(t, f.h.Handle(ctx, payload(t, "ev-2")))
	assert.Equal(t, 2, f.cache.calls)
	assert.Empty(t, f.dlq.msgs)
}

func TestHandle_MalformedPayloadGoesToDLQ(t *testing.T) {
	f := newFixture(3)

	err := f.h.Handle(context.Background(), json.RawMessage(`{"event_id":`))
	require.NoError(t, err)
	require.Len(t, f.dlq.msgs, 1)
	assert.Equal(t, model.RoutingKeyProjectUpdated, f.dlq.msgs[0].routingKey)
	assert.Contains(t, f.dlq.msgs[0].reason, "json_unmarshal_error")
	assert.Zero(t, f.cache.calls)
}

func TestHandle_RetryableErrorIsRequeued(t *testing.T) {
	f := newFixture(3)
	f.cache.errs = []error{errRedisDown}
	ctx := context.Background()

	err := f.h.Handle(ctx, payload(t, "ev-1"))
	assert.ErrorIs(t, err, errRedisDown)
	assert.Equal(t, []string{"ev-1"}, f.deduper.released)

	// 重投后成功，重试计数被清除
	require.NoError(t, f.h.Handle(ctx, payload(t, "ev-1")))
	assert.Equal(t, 2, f.cache.calls)
	assert.Empty(t, f.counter.counts)
	assert.Empty(t, f.dlq.msgs)
}

func TestHandle_RetriesExhausted(t *testing.T) {
	f := newFixture(2)
	f.cache.errs = []error{errRedisDown, errRedisDown, errRedisDown}
	ctx := context.Background()

	assert.Error(t, f.h.Handle(ctx, payload(t, "ev-1")))
	assert.Error(t, f.h.Handle(ctx, payload(t, "ev-1")))
	assert.NoError(t, f.h.Handle(ctx, payload(t, "ev-1")))

	require.Len(t, f.dlq.msgs, 1)
	assert.Contains(t, f.dlq.msgs[0].reason, "connection refused")
	assert.Empty(t, f.counter.counts)
}

func TestHandle_NonRetryableErrorGoesToDLQ(t *testing.T) {
	f := newFixture(5)
	f.cache.errs = []error{errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")}

	require.NoError(t, f.h.Handle(context.Background(), payload(t, "ev-1")))
	assert.Len(t, f.dlq.msgs, 1)
	assert.Equal(t, 1, f.cache.calls)
}

func TestHandle_WithoutEventID(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	require.NoError(t, f.h.Handle(ctx, payload(t, "")))
	require.NoError(t, f.h.Handle(ctx, payload(t, "")))
	assert.Equal(t, 2, f.cache.calls)
	assert.Empty(t, f.deduper.seen)
}
