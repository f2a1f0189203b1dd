package daemon

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/models"
	"golang.org/x/time/rate"
)

const (
	visitorSweepInterval = 5 * time.Minute
	visitorIdleTimeout   = 10 * time.Minute
)

// RateLimiter applies a token bucket per client address.
type RateLimiter struct {
	visitors sync.Map // client address -> *visitor
	limit    rate.Limit
	burst    int

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewRateLimiter allows perSecond sustained requests per address with bursts
// of up to burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}

	rl := &RateLimiter{
		limit:  rate.Limit(perSecond),
		burst:  burst,
		ticker: time.NewTicker(visitorSweepInterval),
		done:   make(chan struct{}),
	}
	go rl.sweep()

	logrus.WithFields(logrus.Fields{
		"rate":  perSecond,
		"burst": burst,
	}).Debugln("Rate limiter initialized")

	return rl
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}

		LogWithCorrelation(c).WithFields(logrus.Fields{
			"ip":   c.ClientIP(),
			"path": c.Request.URL.Path,
		}).Warnln("Rate limit exceeded")

		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
			Code:    http.StatusTooManyRequests,
			Title:   "Too Many Requests",
			Message: "rate limit exceeded, retry later",
		})
	}
}

// Allow consumes a token for addr.
func (rl *RateLimiter) Allow(addr string) bool {
	value, ok := rl.visitors.Load(addr)
	if !ok {
		value, _ = rl.visitors.LoadOrStore(addr, &visitor{
			limiter: rate.NewLimiter(rl.limit, rl.burst),
		})
	}

	v := value.(*visitor)
	v.lastSeen.Store(time.Now().UnixNano())
	return v.limiter.Allow()
}

func (rl *RateLimiter) sweep() {
	for {
		select {
		case <-rl.ticker.C:
			cutoff := time.Now().Add(-visitorIdleTimeout).UnixNano()
			rl.visitors.Range(func(key, value any) bool {
				if value.(*visitor).lastSeen.Load() < cutoff {
					rl.visitors.Delete(key)
				}
				return true
			})
		case <-rl.done:
			rl.ticker.Stop()
			return
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

// Size returns the number of tracked addresses.
func (rl *RateLimiter) Size() int {
	count := 0
	rl.visitors.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
