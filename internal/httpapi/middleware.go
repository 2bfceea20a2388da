package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"oracleflow/internal/apierr"
	"oracleflow/internal/logger"
	"oracleflow/internal/ratelimit"
)

func (s *Server) requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logger.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request handled")
	}
}

func (s *Server) rateLimitMiddleware(class ratelimit.RouteClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := ratelimit.Principal(c.Request)
		if ok, retryAfter := s.limiter.Allow(principal, class); !ok {
			writeError(c, apierr.RateLimited(retryAfter.String()))
			c.Abort()
			return
		}
		c.Next()
	}
}

// writeError renders err as the stable API envelope spec.md §7 defines,
// stamping a trace-id if one wasn't already attached by the constructor.
func writeError(c *gin.Context, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal(err)
	}
	if apiErr.TraceID == "" {
		apiErr.TraceID = uuid.NewString()
	}
	c.JSON(apiErr.HTTPStatus, apiErr)
}

func statusOK(c *gin.Context, body interface{}) {
	c.JSON(http.StatusOK, body)
}
