package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

type countingLimiter struct {
	hits map[string]int
	err  error
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.err != nil {
		return true, l.err
	}
	if l.hits == nil {
		l.hits = map[string]int{}
	}
	l.hits[key]++
	return l.hits[key] <= limit, nil
}

func scanRouter(limiter WindowLimiter, limit int, logger *zap.Logger, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/qr-scan",
		func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: userID, Role: models.RoleStudent})
		},
		ScanRateLimit(limiter, limit, time.Minute, logger),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	return router
}

func TestScanRateLimitBlocksAfterLimit(t *testing.T) {
	limiter := &countingLimiter{}
	router := scanRouter(limiter, 2, nil, "student-1")

	var codes []int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/qr-scan", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 3, limiter.hits["qr-scan:student-1"])
}

func TestScanRateLimitSetsRetryAfter(t *testing.T) {
	router := scanRouter(&countingLimiter{}, 0, nil, "student-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/qr-scan", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "zero limit disables throttling")

	router = scanRouter(&countingLimiter{hits: map[string]int{"qr-scan:student-2": 5}}, 1, nil, "student-2")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/qr-scan", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestScanRateLimitFailsOpen(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	router := scanRouter(&countingLimiter{err: errors.New("redis down")}, 1, zap.New(core), "student-1")

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/qr-scan", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 3, logs.FilterMessage("scan rate limiter unavailable").Len())
}
