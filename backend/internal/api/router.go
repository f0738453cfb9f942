// Package api exposes the relationship engine over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"graphfeed/backend/internal/content"
	"graphfeed/backend/internal/thread"
	"graphfeed/backend/internal/timeline"
	"graphfeed/backend/internal/toggle"
)

// Handlers groups the services behind the routes
type Handlers struct {
	Toggler  *toggle.Toggler
	Threads  *thread.Service
	Timeline *timeline.Ranker
	Content  *content.Service
	Logger   *zap.Logger
}

// NewRouter builds the gin engine with middleware and every route registered
func NewRouter(h *Handlers) *gin.Engine {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(ginLogger(h.Logger))
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/toggle/:kind", h.toggleRelation)

		api.GET("/thread/:postId", h.getThread)
		api.POST("/posts/:postId/comments", h.createComment)
		api.POST("/comments/:commentId/replies", h.createReply)
		api.DELETE("/comments/:commentId", h.deleteComment)

		api.GET("/timeline", h.getTimeline)

		api.POST("/users", h.createUser)
		api.GET("/users/:userId", h.getUser)
		api.GET("/users/:userId/profile", h.getProfile)

		api.GET("/posts", h.listPosts)
		api.POST("/posts", h.createPost)
		api.GET("/posts/:postId", h.getPost)
		api.PATCH("/posts/:postId", h.updatePost)
		api.DELETE("/posts/:postId", h.deletePost)
	}

	return router
}

// cors allows any origin to call the JSON API
func cors() gin.HandlerFunc {
	const (
		allowHeaders = "Content-Type, Authorization"
		allowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	)
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ginLogger writes one line per request. Client errors log at warn and
// server errors at error, with any handler errors attached.
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, zap.Strings("errors", errs.Errors()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("Request failed", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("Request rejected", fields...)
		default:
			log.Info("Request served", fields...)
		}
	}
}
