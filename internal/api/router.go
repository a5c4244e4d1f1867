package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// CORS allows browser clients from allowedOrigins and answers preflight requests.
func CORS(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request through log.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// NewRouter registers every route on a new engine.
func NewRouter(h *Handler, allowedOrigins string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(h.log), CORS(allowedOrigins))

	// Root endpoint for SSL verification
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "invoice-po-matcher",
			"version": Version,
		})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/invoices/bulk", h.BulkUploadHandler)
	v1.GET("/verify", h.VerifyHandler)
	v1.GET("/debug/matching", h.DebugMatchingHandler)
	v1.GET("/usage", h.UsageHandler)
	v1.GET("/settings/assist", h.GetAssistSettingHandler)
	v1.POST("/settings/assist", h.SetAssistSettingHandler)

	return router
}
