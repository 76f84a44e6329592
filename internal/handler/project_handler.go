package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solarcrm/internal/model"
	"solarcrm/internal/repository"
	"solarcrm/internal/service/project"
	"solarcrm/internal/service/report"
	"solarcrm/pkg/logger"
	"solarcrm/pkg/rbac"
)

// ProjectService *project.Service 实现
type ProjectService interface {
	Upsert(ctx context.Context, caller report.Caller, p *model.Project) (*model.ProjectUpdatedPayload, error)
	Get(ctx context.Context, caller report.Caller, id string) (*model.Project, error)
}

type ProjectHandler struct {
	projects ProjectService
	logger   *zap.Logger
}

func NewProjectHandler(projects ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// PutProject 写入项目文档
// PUT /api/v1/projects/:id
func (h *ProjectHandler) PutProject(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)
	id := c.Param("id")
	caller := CallerFrom(c)

	var doc model.Project
	if err := c.ShouldBindJSON(&doc); err != nil {
		log.Warn("PutProject: invalid body", zap.String("project_id", id), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project document"})
		return
	}
	if doc.ID == "" {
		doc.ID = id
	}
	if doc.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id in body does not match path"})
		return
	}

	ev, err := h.projects.Upsert(ctx, caller, &doc)
	if err != nil {
		status, msg := projectErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("PutProject: failed to store project", zap.String("project_id", id), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	log.Info("PutProject: success", zap.String("project_id", id), zap.String("event_id", ev.EventID))
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"event_id": ev.EventID,
		"data":     doc,
	})
}

// GetProject 读取项目文档
// GET /api/v1/projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	p, err := h.projects.Get(ctx, CallerFrom(c), id)
	if err != nil {
		status, msg := projectErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.WithTrace(ctx, h.logger).Error("GetProject: failed to load project",
				zap.String("project_id", id),
				zap.Error(err),
			)
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": p})
}

func projectErrorStatus(err error) (int, string) {
	var mismatch *rbac.PartnerMismatchError
	switch {
	case errors.Is(err, model.ErrInvalidProject):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &mismatch), errors.Is(err, project.ErrForbidden):
		return http.StatusForbidden, "project belongs to another partner"
	case errors.Is(err, repository.ErrProjectNotFound):
		return http.StatusNotFound, "project not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
