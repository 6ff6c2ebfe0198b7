package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the API routes onto a gin engine.
func NewRouter(h *Handler, logger *slog.Logger, env string) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	{
		receipts := v1.Group("/receipts")
		{
			receipts.POST("", h.UploadReceipt)
			receipts.GET("", h.ListJobs)
			receipts.GET("/:id", h.GetJob)
			receipts.GET("/:id/audit", h.GetJobAudit)
			receipts.POST("/:id/process", h.ProcessJob)
			receipts.POST("/:id/reset", h.ResetJob)
			receipts.POST("/process-batch", h.ProcessBatch)
		}
		transactions := v1.Group("/transactions")
		{
			transactions.GET("/pending", h.ListPendingTransactions)
			transactions.POST("/:id/approve", h.ApproveTransaction)
			transactions.POST("/:id/reject", h.RejectTransaction)
			transactions.POST("/:id/export", h.ExportTransaction)
		}
	}
	return r
}

// requestLogger emits one structured line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
