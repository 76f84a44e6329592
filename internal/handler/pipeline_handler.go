package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solarcrm/internal/pipeline"
	"solarcrm/internal/service/report"
	"solarcrm/pkg/logger"
)

type PipelineHandler struct {
	reports report.Generator
	logger  *zap.Logger
}

func NewPipelineHandler(reports report.Generator, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{reports: reports, logger: logger}
}

type reportMeta struct {
	Window  pipeline.Window `json:"window"`
	Scanned int             `json:"scanned"`
	Skipped int             `json:"skipped"`
	Foreign int             `json:"foreign"`
	Cached  bool            `json:"cached"`
}

// GetStages 阶段统计
// GET /api/v1/pipeline/stages?projectType=&after=&before=
func (h *PipelineHandler) GetStages(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)
	caller := CallerFrom(c)

	req := report.Request{
		ProjectType: c.Query("projectType"),
		After:       c.Query("after"),
		Before:      c.Query("before"),
		Caller:      caller,
	}
	log.Info("GetStages request received",
		zap.String("user_id", caller.UserID),
		zap.String("project_type", req.ProjectType),
		zap.String("after", req.After),
		zap.String("before", req.Before),
	)

	resp, err := h.reports.Generate(ctx, req)
	if err != nil {
		status, msg := reportErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("GetStages: report failed", zap.Int("status", status), zap.Error(err))
		} else {
			log.Warn("GetStages: request rejected", zap.Int("status", status), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	sum := resp.Report.Summary
	log.Info("GetStages: success",
		zap.Int("scanned", sum.Scanned),
		zap.Int("skipped", sum.Skipped),
		zap.Bool("cached", resp.Cached),
	)
	c.JSON(http.StatusOK, gin.H{
		"data": resp.Report.Result,
		"meta": reportMeta{
			Window:  resp.Report.Window,
			Scanned: sum.Scanned,
			Skipped: sum.Skipped,
			Foreign: sum.Foreign,
			Cached:  resp.Cached,
		},
	})
}

// GetGraph 阶段表，projectType 为空时返回全部阶段
// GET /api/v1/pipeline/graph?projectType=
func (h *PipelineHandler) GetGraph(c *gin.Context) {
	g := h.reports.Graph()
	projectType := strings.TrimSpace(c.Query("projectType"))

	if projectType == "" {
		c.JSON(http.StatusOK, gin.H{
			"projectTypes": g.ProjectTypes(),
			"stages":       g.Stages(),
		})
		return
	}
	if !g.Knows(projectType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown project type"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"projectTypes": []string{projectType},
		"stages":       g.StagesFor(projectType),
	})
}

func reportErrorStatus(err error) (int, string) {
	switch {
	case pipeline.IsInvalidParameter(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, report.ErrNoScope):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, report.ErrUnavailable):
		return http.StatusServiceUnavailable, "report backend unavailable"
	case pipeline.IsRetrievalFailure(err):
		return http.StatusBadGateway, "failed to retrieve projects"
	default:
		return http.StatusInternalServerError, "failed to build report"
	}
}
