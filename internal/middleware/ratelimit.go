package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

// WindowLimiter counts hits per key in fixed windows.
type WindowLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ScanRateLimit throttles QR scans per authenticated actor. Limiter errors let the request through.
func ScanRateLimit(limiter WindowLimiter, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}
		key := c.ClientIP()
		if claims, ok := currentClaims(c); ok {
			key = claims.UserID
		}

		allowed, err := limiter.Allow(c.Request.Context(), "qr-scan:"+key, limit, window)
		if err != nil {
			logger.Warn("scan rate limiter unavailable", zap.String("key", key), zap.Error(err))
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, appErrors.Clone(appErrors.ErrTooManyRequests, "too many scan attempts, try again later"))
			c.Abort()
			return
		}
		c.Next()
	}
}
