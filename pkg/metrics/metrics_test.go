package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAddPipelineRecords(t *testing.T) {
	before := testutil.ToFloat64(PipelineRecordsScanned.WithLabelValues("RURAL"))
	AddPipelineRecords("RURAL", 7, 0)
	assert.Equal(t, before+7, testutil.ToFloat64(PipelineRecordsScanned.WithLabelValues("RURAL")))

	skipped := testutil.ToFloat64(PipelineRecordsSkipped.WithLabelValues("RURAL"))
	AddPipelineRecords("RURAL", 3, 2)
	assert.Equal(t, skipped+2, testutil.ToFloat64(PipelineRecordsSkipped.WithLabelValues("RURAL")))
}

func TestIncrementReportCache(t *testing.T) {
	before := testutil.ToFloat64(ReportCacheCount.WithLabelValues("hit"))
	IncrementReportCache("hit")
	assert.Equal(t, before+1, testutil.ToFloat64(ReportCacheCount.WithLabelValues("hit")))
}

func TestRecordPipelineReport(t *testing.T) {
	RecordPipelineReport("COMMERCIAL", "ok", 20*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(PipelineReportDuration, "pipeline_report_duration_seconds"))
}
