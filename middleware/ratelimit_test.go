package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRateLimitRouter(t *testing.T, r rate.Limit, b int) *gin.Engine {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	eng := gin.New()
	eng.Use(RateLimit(ctx, r, b))
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return eng
}

func TestRateLimit_Burst(t *testing.T) {
	r := newRateLimitRouter(t, 0.001, 3) // near-zero refill so we exhaust quickly
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", "10.0.1.1").Code, "request %d should be allowed", i+1)
	}
	w := do(r, http.MethodGet, "/", "10.0.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"message":"Too many requests"}`, w.Body.String())
}

func TestRateLimit_PerIP(t *testing.T) {
	r := newRateLimitRouter(t, 0.001, 1)
	for _, ip := range []string{"10.1.1.1", "10.1.1.2"} {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", ip).Code, "first request from %s should be OK", ip)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/", "10.1.1.1").Code)
}

func TestLimiterSet_Sweep(t *testing.T) {
	set := &limiterSet{ips: map[string]*ipLimiter{}, r: 1, b: 1}
	now := time.Now()
	set.get("10.0.0.1", now.Add(-time.Hour))
	set.get("10.0.0.2", now)

	set.sweep(now.Add(-limiterIdleAfter))
	assert.Len(t, set.ips, 1)
	assert.Contains(t, set.ips, "10.0.0.2")
}
