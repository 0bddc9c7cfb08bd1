package server

import (
	"container/list"
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/livetemplate/resultplay/internal/config"
)

// evictionLogInterval is the minimum time between eviction log messages.
const evictionLogInterval = 30 * time.Second

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	RPS         float64
	Burst       int
	MaxClients  int           // LRU eviction beyond this many tracked IPs
	IdleTimeout time.Duration // Buckets of clients quiet this long are dropped
	Logger      *zap.Logger
}

// RateLimitOptionsFrom reads the api.rate_limit section.
func RateLimitOptionsFrom(cfg *config.APIConfig, logger *zap.Logger) RateLimitOptions {
	return RateLimitOptions{
		RPS:         cfg.GetRateLimitRPS(),
		Burst:       cfg.GetRateLimitBurst(),
		MaxClients:  cfg.GetRateLimitMaxIPs(),
		IdleTimeout: cfg.GetRateLimitIdleTimeout(),
		Logger:      logger,
	}
}

type clientBucket struct {
	ip       string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter holds one token bucket per client IP, most recent first.
type clientLimiter struct {
	opts RateLimitOptions

	mu      sync.Mutex
	buckets map[string]*list.Element
	order   *list.List

	// guarded by mu
	lastEvictLog time.Time
	evicted      int
}

func newClientLimiter(opts RateLimitOptions) *clientLimiter {
	if opts.MaxClients <= 0 {
		opts.MaxClients = 10000
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &clientLimiter{
		opts:    opts,
		buckets: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// allow takes a token from ip's bucket, creating the bucket on first use.
func (l *clientLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.buckets[ip]
	if ok {
		l.order.MoveToFront(elem)
	} else {
		if l.order.Len() >= l.opts.MaxClients {
			l.evictLocked(now)
		}
		elem = l.order.PushFront(&clientBucket{
			ip:      ip,
			limiter: rate.NewLimiter(rate.Limit(l.opts.RPS), l.opts.Burst),
		})
		l.buckets[ip] = elem
	}
	b := elem.Value.(*clientBucket)
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *clientLimiter) evictLocked(now time.Time) {
	back := l.order.Back()
	if back == nil {
		return
	}
	l.order.Remove(back)
	delete(l.buckets, back.Value.(*clientBucket).ip)

	l.evicted++
	if now.Sub(l.lastEvictLog) >= evictionLogInterval {
		l.opts.Logger.Warn("rate limiter evicted least-recent clients",
			zap.Int("evicted", l.evicted),
			zap.Int("capacity", l.opts.MaxClients))
		l.lastEvictLog = now
		l.evicted = 0
	}
}

// sweep drops clients idle for longer than IdleTimeout and reports how many
// were dropped. Recency order is by access, so the whole list is scanned.
func (l *clientLimiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for e := l.order.Back(); e != nil; {
		prev := e.Prev()
		if b := e.Value.(*clientBucket); now.Sub(b.lastSeen) > l.opts.IdleTimeout {
			l.order.Remove(e)
			delete(l.buckets, b.ip)
			dropped++
		}
		e = prev
	}
	return dropped
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// sweepInterval is half the idle timeout, capped at five minutes.
func (l *clientLimiter) sweepInterval() time.Duration {
	return max(time.Second, min(5*time.Minute, l.opts.IdleTimeout/2))
}

func (l *clientLimiter) sweepLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.sweepInterval())
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := l.sweep(now); n > 0 {
				l.opts.Logger.Debug("rate limiter dropped idle clients", zap.Int("dropped", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// RateLimitMiddleware answers 429 once a client IP exhausts its token bucket.
// The sweep goroutine starts immediately and stops when ctx is cancelled;
// the returned channel is closed when it has exited.
func RateLimitMiddleware(ctx context.Context, opts RateLimitOptions) (func(http.Handler) http.Handler, <-chan struct{}) {
	l := newClientLimiter(opts)
	done := make(chan struct{})
	go l.sweepLoop(ctx, done)

	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(getClientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return mw, done
}
