package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService 管理接口使用：列出失败事件并重新排队
type ReplayService struct {
	repo   *Repository
	logger *zap.Logger
}

// NewReplayService 创建新的 ReplayService
func NewReplayService(repo *Repository, logger *zap.Logger) *ReplayService {
	return &ReplayService{repo: repo, logger: logger}
}

// ListFailed 最近的失败事件
func (s *ReplayService) ListFailed(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.GetFailedEvents(ctx, limit)
}

// Replay 把事件重置为 pending，由 Dispatcher 在下一轮发送
func (s *ReplayService) Replay(ctx context.Context, eventID int64) error {
	if err := s.repo.ReplayEvent(ctx, eventID); err != nil {
		return fmt.Errorf("replay event %d: %w", eventID, err)
	}
	s.logger.Info("Outbox event queued for replay", zap.Int64("event_id", eventID))
	return nil
}
