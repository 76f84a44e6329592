package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"solarcrm/internal/model"
	"solarcrm/pkg/logger"
	"solarcrm/pkg/metrics"
	"solarcrm/pkg/trace"
	"solarcrm/pkg/util"
)

const handlerName = "project_updated"

// CacheInvalidator *cache.ReportCache 实现
type CacheInvalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Deduper *util.Deduper 实现
type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, eventID string) bool
	Release(ctx context.Context, handler string, eventID string)
}

// RetryCounter *util.RetryCounter 实现
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DLQPublisher *mq.Publisher 实现
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

// ProjectUpdatedHandler 项目文档变更后让报表缓存失效
type ProjectUpdatedHandler struct {
	cache        CacheInvalidator
	deduper      Deduper
	retryCounter RetryCounter
	dlq          DLQPublisher
	maxRetries   int64
	logger       *zap.Logger
}

func NewProjectUpdatedHandler(
	cache CacheInvalidator,
	deduper Deduper,
	retryCounter RetryCounter,
	dlq DLQPublisher,
	maxRetries int64,
	logger *zap.Logger,
) *ProjectUpdatedHandler {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &ProjectUpdatedHandler{
		cache:        cache,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		maxRetries:   maxRetries,
		logger:       logger,
	}
}

// Handle 返回 error 时 consumer 会 nack 重投；无法处理的消息进入 DLQ 后返回 nil
func (h *ProjectUpdatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p model.ProjectUpdatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal project updated payload (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		h.toDLQ(ctx, raw, fmt.Errorf("json_unmarshal_error: %w", err))
		return nil
	}
	if p.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("event_id", p.EventID),
		zap.String("project_id", p.ProjectID),
	)

	if p.EventID != "" && !h.deduper.AcquireOnce(ctx, handlerName, p.EventID) {
		metrics.IncrementProjectEvent("duplicate")
		return nil
	}

	version, err := h.cache.Invalidate(ctx)
	if err == nil {
		h.resetRetries(ctx, p.EventID)
		metrics.IncrementProjectEvent("cache_invalidated")
		log.Info("Report cache invalidated",
			zap.String("project_type", p.Type),
			zap.Int64("cache_version", version),
		)
		return nil
	}

	isRetryable, errType := util.IsRetryableError(err)
	if p.EventID != "" {
		h.deduper.Release(ctx, handlerName, p.EventID)
	}

	retryCount := int64(1)
	if p.EventID != "" {
		n, rerr := h.retryCounter.IncrementAndGet(ctx, util.FormatRetryKey(handlerName, p.EventID))
		if rerr != nil {
			log.Warn("Failed to get retry count, continuing anyway", zap.Error(rerr))
		} else {
			retryCount = n
		}
	}

	log.Error("Failed to invalidate report cache",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Int64("retry_count", retryCount),
		zap.Int64("max_retries", h.maxRetries),
		zap.Error(err),
	)

	if util.ShouldRetry(retryCount, h.maxRetries, isRetryable) {
		return err
	}

	h.toDLQ(ctx, raw, err)
	h.resetRetries(ctx, p.EventID)
	return nil
}

func (h *ProjectUpdatedHandler) toDLQ(ctx context.Context, raw []byte, cause error) {
	metrics.IncrementProjectEvent("dlq")
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(ctx, model.RoutingKeyProjectUpdated, raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ",
			zap.String("routing_key", model.RoutingKeyProjectUpdated),
			zap.Error(err),
		)
	}
}

func (h *ProjectUpdatedHandler) resetRetries(ctx context.Context, eventID string) {
	if eventID == "" {
		return
	}
	if err := h.retryCounter.Reset(ctx, util.FormatRetryKey(handlerName, eventID)); err != nil {
		h.logger.Debug("Failed to reset retry counter", zap.String("event_id", eventID), zap.Error(err))
	}
}
