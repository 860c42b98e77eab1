package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/denismitr/pathkeeper/internal/logging"
	"github.com/denismitr/pathkeeper/internal/metrics"
)

const (
	RequestIdHeaderKey = "X-Request-Id"
	dynamicRoute       = "dynamic"
)

// requestContext puts a request scoped logger into the request context.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIdHeaderKey)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIdHeaderKey, id)

		logger := s.logger.WithValues(
			"requestId", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		c.Request = c.Request.WithContext(logging.IntoContext(c.Request.Context(), logger))
		c.Next()
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = dynamicRoute
		}

		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordRequestLatency(route, strconv.Itoa(status), elapsed)

		logging.FromContext(c.Request.Context()).V(logging.VERBOSE).Info("Request served",
			"route", route, "status", status, "duration", elapsed)
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		s.logger.V(logging.DEFAULT).Error(nil, "Recovered from panic",
			"panic", recovered, "method", c.Request.Method, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": serverErrorMessage})
	})
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
		if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
			h.Add("Vary", "Access-Control-Request-Headers")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
