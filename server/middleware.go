package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Handler) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		s.logger.Infow("Request processed",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"clientIP", c.ClientIP(),
		)

		if len(c.Errors) > 0 {
			s.logger.Errorw("Request errors", "errors", c.Errors.String())
		}
	}
}

func (s *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many control requests",
			})
			return
		}
		c.Next()
	}
}
