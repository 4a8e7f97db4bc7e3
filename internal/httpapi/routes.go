package httpapi

import (
	"github.com/gin-gonic/gin"

	"voice-platform/internal/rbac"
)

// Register mounts the ops API on g. g must already verify access tokens.
func (h Handlers) Register(g *gin.RouterGroup) {
	g.Use(rbac.RequireTenant())

	callsGroup := g.Group("/calls")
	callsGroup.POST("/outbound", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleOperator), h.DispatchOutbound)
	callsGroup.GET("/:call_id", h.GetCall)

	ev := g.Group("/webhook-events")
	ev.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleOperator))
	ev.GET("", h.ListWebhookEvents)
	ev.POST("/:event_id/replay", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin), h.ReplayWebhookEvent)

	voice := g.Group("/voice")
	voice.GET("/assistants", h.ListAssistants)
	voice.GET("/phone-numbers", h.ListPhoneNumbers)

	g.GET("/campaigns/:campaign_id/metrics", h.GetCampaignMetrics)
	g.GET("/leads", h.GetLeadByPhone)
}
