package project

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"solarcrm/internal/model"
	"solarcrm/internal/pipeline"
	"solarcrm/internal/repository"
	"solarcrm/internal/service/report"
	"solarcrm/pkg/logger"
	"solarcrm/pkg/metrics"
	"solarcrm/pkg/rbac"
)

// ErrForbidden 调用方无权访问该项目
var ErrForbidden = errors.New("project belongs to another partner")

// Store *repository.ProjectRepository 实现
type Store interface {
	Get(ctx context.Context, id string) (*model.Project, error)
	Upsert(ctx context.Context, p *model.Project) (*model.ProjectUpdatedPayload, error)
}

// Service 项目文档的读写
type Service struct {
	store  Store
	graph  *pipeline.Graph
	logger *zap.Logger
}

func NewService(store Store, graph *pipeline.Graph, logger *zap.Logger) *Service {
	return &Service{store: store, graph: graph, logger: logger}
}

// Upsert 校验文档和合作方后写入。事件通过 outbox 异步发布
func (s *Service) Upsert(ctx context.Context, caller report.Caller, p *model.Project) (*model.ProjectUpdatedPayload, error) {
	log := logger.WithTrace(ctx, s.logger)

	p.ID = strings.TrimSpace(p.ID)
	p.Type = strings.TrimSpace(p.Type)
	p.PartnerID = strings.TrimSpace(p.PartnerID)

	if err := p.Validate(s.graph.Knows); err != nil {
		metrics.IncrementProjectEvent("invalid")
		return nil, err
	}
	if err := rbac.ValidatePartnerInPayload(caller.Role, caller.PartnerID, p.PartnerID); err != nil {
		log.Warn("Project upsert rejected, partner mismatch",
			zap.String("user_id", caller.UserID),
			zap.String("project_id", p.ID),
			zap.String("token_partner_id", caller.PartnerID),
			zap.String("payload_partner_id", p.PartnerID),
		)
		metrics.IncrementProjectEvent("forbidden")
		return nil, err
	}

	// 已存在的项目不能被其他合作方覆盖
	if caller.Role != rbac.RoleAdmin {
		existing, err := s.store.Get(ctx, p.ID)
		switch {
		case err == nil && existing.PartnerID != caller.PartnerID:
			metrics.IncrementProjectEvent("forbidden")
			return nil, ErrForbidden
		case err != nil && !errors.Is(err, repository.ErrProjectNotFound):
			return nil, err
		}
	}

	ev, err := s.store.Upsert(ctx, p)
	if err != nil {
		metrics.IncrementProjectEvent("error")
		return nil, err
	}
	metrics.IncrementProjectEvent("upserted")
	log.Info("Project document stored",
		zap.String("user_id", caller.UserID),
		zap.String("project_id", p.ID),
		zap.String("event_id", ev.EventID),
	)
	return ev, nil
}

// Get 读取项目文档，非管理员只能读取自己合作方的项目
func (s *Service) Get(ctx context.Context, caller report.Caller, id string) (*model.Project, error) {
	p, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if caller.Role != rbac.RoleAdmin && p.PartnerID != caller.PartnerID {
		return nil, ErrForbidden
	}
	return p, nil
}
