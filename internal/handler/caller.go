package handler

import (
	"github.com/gin-gonic/gin"

	"solarcrm/internal/service/report"
)

// gin.Context 中由认证中间件写入的键
const (
	ContextKeyUserID    = "user_id"
	ContextKeyPartnerID = "partner_id"
	ContextKeyRole      = "role"
)

// CallerFrom 读取认证中间件写入的用户信息
func CallerFrom(c *gin.Context) report.Caller {
	return report.Caller{
		UserID:    c.GetString(ContextKeyUserID),
		PartnerID: c.GetString(ContextKeyPartnerID),
		Role:      c.GetString(ContextKeyRole),
	}
}
