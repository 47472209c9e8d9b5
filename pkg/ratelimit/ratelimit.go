package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/devmail/webapp/pkg/apiresponses"
	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/metrics"
)

const (
	defaultSweepEvery = time.Minute
	defaultIdleTTL    = 5 * time.Minute
)

// Config holds rate limiter configuration.
type Config struct {
	// Rate is the sustained number of requests per second per client.
	Rate float64
	// Burst is the bucket size per client.
	Burst int
	// SweepEvery is how often idle clients are forgotten.
	SweepEvery time.Duration
	// IdleTTL is how long a client bucket survives without requests.
	IdleTTL time.Duration
}

// FromConfig converts the rateLimit section of the application config.
func FromConfig(c config.RateLimit) Config {
	return Config{
		Rate:       c.Rate,
		Burst:      c.Burst,
		SweepEvery: defaultSweepEvery,
		IdleTTL:    defaultIdleTTL,
	}
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	clk   clock.WithTicker
	conf  Config
	mu    sync.Mutex
	byIP  map[string]*bucket
	stop  chan struct{}
	close sync.Once
}

// New creates a limiter on the real clock and starts its sweeper.
func New(cfg Config) *IPRateLimiter {
	return NewWithClock(cfg, clock.RealClock{})
}

// NewWithClock is New with an injected clock.
func NewWithClock(cfg Config, clk clock.WithTicker) *IPRateLimiter {
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = defaultSweepEvery
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	rl := &IPRateLimiter{
		clk:  clk,
		conf: cfg,
		byIP: make(map[string]*bucket),
		stop: make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Config returns the effective configuration.
func (rl *IPRateLimiter) Config() Config {
	return rl.conf
}

// Allow takes one token from the bucket of ip.
func (rl *IPRateLimiter) Allow(ip string) bool {
	now := rl.clk.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.byIP[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(rl.conf.Rate), rl.conf.Burst)}
		rl.byIP[ip] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

// RetryAfter is the whole number of seconds until one token is refilled.
func (rl *IPRateLimiter) RetryAfter() int {
	if rl.conf.Rate <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/rl.conf.Rate)))
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. CORS preflight requests are never counted.
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		metrics.RateLimitRejected.WithLabelValues(c.FullPath()).Inc()
		c.Header("Retry-After", strconv.Itoa(rl.RetryAfter()))
		apiresponses.RespondTooManyRequests(c)
		c.Abort()
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (rl *IPRateLimiter) Stop() {
	rl.close.Do(func() { close(rl.stop) })
}

func (rl *IPRateLimiter) sweepLoop() {
	ticker := rl.clk.NewTicker(rl.conf.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C():
			rl.sweep(now)
		}
	}
}

func (rl *IPRateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.byIP {
		if now.Sub(b.seen) > rl.conf.IdleTTL {
			delete(rl.byIP, ip)
		}
	}
}

// Len reports how many clients are tracked.
func (rl *IPRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.byIP)
}
