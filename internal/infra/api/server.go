package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewServer creates the HTTP engine. The /api group is only mounted when
// apiAccessKey is set.
func NewServer(handler *Handler, apiAccessKey string, log *logrus.Entry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(log))
	r.Use(gin.Recovery())

	setupRoutes(r, handler, apiAccessKey, log)
	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string, log *logrus.Entry) {
	r.GET("/health", handler.GetHealth)

	if apiAccessKey == "" {
		log.Info("API endpoints disabled (API_ACCESS_KEY not set)")
		return
	}

	api := r.Group("/api")
	api.Use(authMiddleware(apiAccessKey))
	{
		api.POST("/cycles", handler.RunFullCycle)
		api.POST("/cycles/bills", handler.RunBillReconciliation)
		api.POST("/cycles/alerts", handler.RunAlertReconciliation)
		api.GET("/records/new", handler.ListNewRecords)
		api.GET("/records/uncategorized/:source", handler.ListUncategorized)
		api.POST("/notifications", handler.DispatchNotifications)
		api.GET("/runs", handler.ListRuns)
	}
	log.Info("API endpoints enabled with authentication")
}

// authMiddleware accepts the key in X-API-Key or as an Authorization bearer token.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")
		if providedKey == "" {
			if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			return
		}
		if providedKey != apiAccessKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			return
		}
		c.Next()
	}
}

func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		})
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Debug("HTTP request")
	}
}
