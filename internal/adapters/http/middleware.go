package http

import (
	stdhttp "net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/dkeye/ChatCall/internal/adapters/signal"
	"github.com/dkeye/ChatCall/internal/config"
	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/dkeye/ChatCall/internal/metrics"
)

const sessionUserKey = "user_id"

// IdentityMiddleware stores the caller's user id under signal.IdentityKey.
// Requests without a valid identity continue anonymously.
func IdentityMiddleware(mode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw string
		switch mode {
		case config.AuthSession:
			raw, _ = sessions.Default(c).Get(sessionUserKey).(string)
		default:
			raw = c.Query("userId")
			if raw == "" {
				raw = c.GetHeader("X-User-ID")
			}
		}
		if id, err := domain.ParseUserID(raw); err == nil {
			c.Set(signal.IdentityKey, string(id))
		}
		c.Next()
	}
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		metrics.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by identity when present, else by client IP.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if s := c.GetString(signal.IdentityKey); s != "" {
			return "user:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local per-key token bucket limiter.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
}

func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// sweep idle buckets before touching the requested one
	rl.lookups++
	if rl.lookups >= 5000 {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.get(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		metrics.RateLimitHits.WithLabelValues("http").Inc()
		c.Header("Retry-After", "1")
		fail(c, stdhttp.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
	}
}
