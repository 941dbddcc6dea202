package api

import (
	"net/http"
	"time"

	"hypocycle/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the HTTP API. recorder may be nil, in which case /metrics
// is not served.
func NewRouter(handler *CycleHandler, recorder *metrics.Recorder, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if recorder != nil {
		router.GET("/metrics", gin.WrapH(recorder.Handler()))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/interpret", handler.Interpret)
		v1.POST("/cycles", handler.RunCycle)
		v1.POST("/cycles/batch", handler.RunBatch)
		v1.GET("/cycles", handler.ListCycles)
		v1.GET("/cycles/:id", handler.GetCycle)
		v1.GET("/cycles/:id/report", handler.GetReport)
		v1.GET("/cycles/:id/export", handler.ExportCycle)
		if handler.events != nil {
			v1.GET("/events", handler.events.HandleSSE)
		}
	}

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
