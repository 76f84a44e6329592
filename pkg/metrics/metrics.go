package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 阶段统计耗时（秒）
	PipelineReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_report_duration_seconds",
			Help:    "Pipeline stage report generation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"project_type", "outcome"},
	)

	// 统计时扫描的项目数
	PipelineRecordsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_records_scanned_total",
			Help: "Total number of project records scanned by the pipeline engine",
		},
		[]string{"project_type"},
	)

	// 被跳过的脏数据
	PipelineRecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_records_skipped_total",
			Help: "Total number of malformed project records skipped",
		},
		[]string{"project_type"},
	)

	// 报表缓存命中情况
	ReportCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_report_cache_total",
			Help: "Report cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// project.updated 事件处理计数
	ProjectEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_event_processed_total",
			Help: "Total number of project events processed",
		},
		[]string{"status"}, // status: success, duplicate, failed, dlq
	)
)

// RecordPipelineReport 记录一次统计
func RecordPipelineReport(projectType, outcome string, duration time.Duration) {
	PipelineReportDuration.WithLabelValues(projectType, outcome).Observe(duration.Seconds())
}

// AddPipelineRecords 累加扫描和跳过的记录数
func AddPipelineRecords(projectType string, scanned, skipped int) {
	PipelineRecordsScanned.WithLabelValues(projectType).Add(float64(scanned))
	if skipped > 0 {
		PipelineRecordsSkipped.WithLabelValues(projectType).Add(float64(skipped))
	}
}

// IncrementReportCache 记录缓存查询结果
func IncrementReportCache(result string) {
	ReportCacheCount.WithLabelValues(result).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询，operation 取 SQL 的第一个关键字
func IncrementSlowQuery(operation string) {
	DBSlowQueryCount.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementProjectEvent 增加事件处理计数
func IncrementProjectEvent(status string) {
	ProjectEventCount.WithLabelValues(status).Inc()
}
