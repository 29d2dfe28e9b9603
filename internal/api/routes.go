package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/gin"
)

// SetupRoutes configures all API routes.
// /api/v1 is protected with JWT when jwtSecret is set; /metrics stays public.
func SetupRoutes(
	router *gin.Engine,
	workflows *WorkflowHandler,
	records *RecordsHandler,
	metrics http.Handler,
	jwtSecret string,
) {
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := infragin.ProtectedGroup(router, "/api/v1", jwtSecret)

	v1.GET("/workflows", workflows.List)
	v1.POST("/workflows", workflows.Create)
	v1.GET("/workflows/:id", workflows.Get)
	v1.PUT("/workflows/:id", workflows.Update)
	v1.DELETE("/workflows/:id", workflows.Delete)
	v1.POST("/workflows/:id/start", workflows.Start)
	v1.POST("/workflows/:id/stop", workflows.Stop)
	v1.POST("/workflows/:id/execute", workflows.Execute)
	v1.GET("/workflow-types", workflows.Types)

	v1.GET("/publish-history", records.PublishHistory)

	v1.GET("/system-logs", records.SystemLogs)
	v1.GET("/system-logs/export", records.ExportSystemLogs)
	v1.DELETE("/system-logs", records.ClearSystemLogs)

	v1.GET("/contents", records.Contents)
	v1.GET("/contents/:id", records.GetContent)
	v1.PUT("/contents/:id", records.UpdateContent)
	v1.DELETE("/contents/:id", records.DeleteContent)
}
