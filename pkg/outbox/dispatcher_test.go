package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solarcrm/pkg/trace"
)

type fakeStore struct {
	pending []*Event
	sent    []int64
	failed  []int64
}

func (s *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	s.failed = append(s.failed, id)
	return nil
}

type published struct {
	routingKey string
	traceID    string
	payload    map[string]any
}

type fakePublisher struct {
	failOn string
	out    []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	m := payload.(map[string]any)
	if m["project_id"] == p.failOn {
		return errors.New("channel closed")
	}
	p.out = append(p.out, published{routingKey: routingKey, traceID: trace.FromContext(ctx), payload: m})
	return nil
}

func event(t *testing.T, id int64, payload map[string]any) *Event {
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Event{ID: id, RoutingKey: "project.updated", Payload: raw, Status: StatusPending}
}

func TestDispatcher_PublishesAndMarks(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		event(t, 1, map[string]any{"project_id": "p-1", "trace_id": "abc"}),
		event(t, 2, map[string]any{"project_id": "p-2"}),
		event(t, 3, map[string]any{"project_id": "p-3"}),
	}}
	pub := &fakePublisher{failOn: "p-2"}

	sent := NewDispatcher(store, pub, zap.NewNop()).ProcessPendingEvents(context.Background())

	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Equal(t, []int64{2}, store.failed)
	require.Len(t, pub.out, 2)
	assert.Equal(t, "project.updated", pub.out[0].routingKey)
	assert.Equal(t, "abc", pub.out[0].traceID)
	assert.Equal(t, "", pub.out[1].traceID)
}

func TestDispatcher_BadPayloadIsRetried(t *testing.T) {
	store := &fakeStore{pending: []*Event{{ID: 9, RoutingKey: "project.updated", Payload: json.RawMessage(`not json`)}}}
	pub := &fakePublisher{}

	sent := NewDispatcher(store, pub, zap.NewNop()).ProcessPendingEvents(context.Background())

	assert.Zero(t, sent)
	assert.Equal(t, []int64{9}, store.failed)
	assert.Empty(t, pub.out)
}

func TestDispatcher_BatchSize(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		event(t, 1, map[string]any{"project_id": "a"}),
		event(t, 2, map[string]any{"project_id": "b"}),
	}}
	d := NewDispatcher(store, &fakePublisher{}, zap.NewNop()).WithBatchSize(1).WithBatchSize(0)

	assert.Equal(t, 1, d.ProcessPendingEvents(context.Background()))
	assert.Equal(t, []int64{1}, store.sent)
}
