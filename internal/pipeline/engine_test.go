package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryRetriever 在内存中按候选条件过滤
func memoryRetriever(recs []Record, calls *int) Retriever {
	return RetrieverFunc(func(ctx context.Context, pred Predicate, fields []Field) ([]Record, error) {
		if calls != nil {
			*calls++
		}
		var out []Record
		for _, r := range recs {
			if pred.Match(r) {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

func TestEngine_Run(t *testing.T) {
	recs := []Record{
		doc("P1", TypeResidential, map[Field]any{
			FieldPartnerID:       "partner-1",
			FieldContractRequest: "2024-01-01T00:00:00Z",
		}),
		doc("P2", TypeResidential, map[Field]any{
			FieldPartnerID:       "partner-1",
			FieldContractRequest: "2024-01-01T00:00:00Z",
			FieldContractRelease: "2024-01-03T00:00:00Z",
		}),
		doc("P3", TypeCommercial, map[Field]any{
			FieldPartnerID:       "partner-1",
			FieldContractRequest: "2024-01-01T00:00:00Z",
		}),
		doc("P4", TypeResidential, map[Field]any{
			FieldPartnerID:       "partner-2",
			FieldContractRequest: "2024-01-01T00:00:00Z",
		}),
	}
	calls := 0
	e := NewEngine(DefaultGraph(), memoryRetriever(recs, &calls), DefaultOptions(), zap.NewNop())

	rep, err := e.Run(context.Background(), Request{
		ProjectType: TypeResidential,
		After:       "2024-01-01",
		Before:      "2024-01-31",
		Scope:       Eq{Field: FieldPartnerID, Value: "partner-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	st, _ := rep.Result.Stage(PhaseContracting, "Contract Formulation")
	assert.Equal(t, StageStats{InProgressCount: 1, CompletedCount: 1, TotalCompletionHours: 48}, st)
	assert.Equal(t, 2, rep.Summary.Scanned)
	assert.Equal(t, mustTime(t, "2024-01-01T03:00:00Z"), rep.Window.Start)
}

func TestEngine_RunParallelMatchesSequential(t *testing.T) {
	recs := sampleBatch()
	seq := NewEngine(DefaultGraph(), memoryRetriever(recs, nil), DefaultOptions(), nil)
	opts := DefaultOptions()
	opts.Workers = 4
	par := NewEngine(DefaultGraph(), memoryRetriever(recs, nil), opts, nil)

	req := Request{ProjectType: TypeResidential, After: "2024-01-01", Before: "2024-01-31"}
	a, err := seq.Run(context.Background(), req)
	require.NoError(t, err)
	b, err := par.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEngine_InvalidParameters(t *testing.T) {
	calls := 0
	e := NewEngine(DefaultGraph(), memoryRetriever(nil, &calls), DefaultOptions(), nil)

	_, err := e.Run(context.Background(), Request{After: "2024-01-01", Before: "2024-01-31"})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = e.Run(context.Background(), Request{ProjectType: TypeRural, After: "2024-02-30", Before: "2024-03-01"})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = e.Run(context.Background(), Request{ProjectType: TypeRural, After: "2024-03-01", Before: "2024-02-01"})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	assert.Equal(t, 0, calls, "retrieval must not run for invalid parameters")
}

func TestEngine_EmptyWindowPolicy(t *testing.T) {
	recs := []Record{
		doc("P1", TypeRural, map[Field]any{FieldContractRequest: "2024-01-01T00:00:00Z"}),
		doc("P2", TypeRural, map[Field]any{
			FieldContractRequest: "2024-01-01T00:00:00Z",
			FieldContractRelease: "2024-01-03T00:00:00Z",
		}),
	}
	opts := DefaultOptions()
	opts.Policy = WindowPolicyEmpty
	e := NewEngine(DefaultGraph(), memoryRetriever(recs, nil), opts, nil)

	rep, err := e.Run(context.Background(), Request{ProjectType: TypeRural, After: "2024-03-01", Before: "2024-02-01"})
	require.NoError(t, err)
	assert.True(t, rep.Window.Empty)

	st, _ := rep.Result.Stage(PhaseContracting, "Contract Formulation")
	assert.Equal(t, StageStats{InProgressCount: 1}, st)
}

func TestEngine_RetrievalFailurePropagates(t *testing.T) {
	storeErr := errors.New("connection refused")
	e := NewEngine(DefaultGraph(), RetrieverFunc(func(ctx context.Context, pred Predicate, fields []Field) ([]Record, error) {
		return nil, storeErr
	}), DefaultOptions(), nil)

	_, err := e.Run(context.Background(), Request{ProjectType: TypeRural, After: "2024-01-01", Before: "2024-01-31"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.True(t, IsRetrievalFailure(err))
	assert.False(t, IsInvalidParameter(err))
}

func TestEngine_PassesProjectionFields(t *testing.T) {
	var got []Field
	e := NewEngine(DefaultGraph(), RetrieverFunc(func(ctx context.Context, pred Predicate, fields []Field) ([]Record, error) {
		got = fields
		return nil, nil
	}), DefaultOptions(), nil)

	rep, err := e.Run(context.Background(), Request{ProjectType: TypeMaintenance, After: "2024-01-01", Before: "2024-01-31"})
	require.NoError(t, err)
	assert.Empty(t, rep.Result)
	assert.Equal(t, DefaultGraph().Fields(), got)
}

func TestOptions_Fingerprint(t *testing.T) {
	base := DefaultOptions()
	assert.Equal(t, "o-180.reject.d480", base.Fingerprint())

	// 并发度不影响结果
	parallel := base
	parallel.Workers = 8
	assert.Equal(t, base.Fingerprint(), parallel.Fingerprint())

	// 零值按默认值计算
	assert.Equal(t, "o0.reject.d480", Options{}.Fingerprint())

	changed := []Options{base, base, base}
	changed[0].Offset = 0
	changed[1].Policy = WindowPolicyEmpty
	changed[2].DefaultDuration = 24 * time.Hour
	for _, o := range changed {
		assert.NotEqual(t, base.Fingerprint(), o.Fingerprint())
	}

	e := NewEngine(DefaultGraph(), memoryRetriever(nil, nil), base, nil)
	assert.Equal(t, base.Fingerprint(), e.Fingerprint())
}

func TestEngine_RunCanceledDuringAggregation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine(DefaultGraph(), RetrieverFunc(func(context.Context, Predicate, []Field) ([]Record, error) {
		cancel()
		return []Record{doc("p-1", TypeRural, nil)}, nil
	}), DefaultOptions(), nil)

	_, err := e.Run(ctx, Request{ProjectType: TypeRural, After: "2024-01-01", Before: "2024-01-31"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetrievalFailure(err))
}
