package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"solarcrm/internal/handler"
	"solarcrm/pkg/config"
	"solarcrm/pkg/otel"
	"solarcrm/pkg/rbac"
)

// Pinger *pgxpool.Pool / *redis.Client 的健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc 函数适配器
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// ConnChecker *mq.Consumer / *mq.Publisher
type ConnChecker interface {
	IsConnected() bool
}

type Router struct {
	Engine *gin.Engine
}

// Deps 路由依赖。AdminHandler 和 MQ 为 nil 时不注册对应功能
type Deps struct {
	Pipeline  *handler.PipelineHandler
	Projects  *handler.ProjectHandler
	Admin     *handler.AdminHandler
	JWTSecret string
	Server    config.ServerConfig
	DB        Pinger
	MQ        []ConnChecker
	Logger    *zap.Logger
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(otel.GinMiddleware())
	r.Use(RequestLogMiddleware(d.Logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyz(d.DB, d.MQ))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(RateLimitMiddleware(d.Server.RateLimit, d.Server.RateBurst))
	api.Use(AuthMiddleware(d.JWTSecret))
	{
		api.GET("/pipeline/stages", RequirePermission(rbac.PermissionReadPipeline), d.Pipeline.GetStages)
		api.GET("/pipeline/graph", RequirePermission(rbac.PermissionReadGraph), d.Pipeline.GetGraph)
		api.GET("/projects/:id", RequirePermission(rbac.PermissionReadPipeline), d.Projects.GetProject)
		api.PUT("/projects/:id", RequirePermission(rbac.PermissionWriteProject), d.Projects.PutProject)
	}

	if d.Admin != nil {
		admin := r.Group("/admin")
		admin.Use(AuthMiddleware(d.JWTSecret), RequirePermission(rbac.PermissionReplayOutbox))
		{
			admin.GET("/outbox/failed", d.Admin.ListFailedEvents)
			admin.POST("/outbox/replay", d.Admin.ReplayOutboxEvent)
		}
	}

	return &Router{Engine: r}
}

func readyz(db Pinger, mqs []ConnChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}

		for _, m := range mqs {
			if m != nil && !m.IsConnected() {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
