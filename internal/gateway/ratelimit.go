package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const limiterSweepInterval = 5 * time.Minute

// RateLimiter is a fixed-window request budget, keyed by caller identity.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) Decision
	Close()
}

// Decision is one rate limiter verdict.
type Decision struct {
	Allowed   bool
	Count     int
	WindowEnd time.Time
}

// --- in-memory limiter -------------------------------------------------------

type memoryLimiter struct {
	mu      sync.Mutex
	entries map[string]windowState
	stopCh  chan struct{}
	once    sync.Once
}

type windowState struct {
	count     int
	windowEnd time.Time
}

// NewMemoryLimiter creates the in-process limiter used when no Redis address
// is configured.
func NewMemoryLimiter() RateLimiter {
	rl := &memoryLimiter{
		entries: make(map[string]windowState),
		stopCh:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *memoryLimiter) Allow(key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.entries[key]
	if !ok || now.After(state.windowEnd) {
		state = windowState{count: 1, windowEnd: now.Add(window)}
		rl.entries[key] = state
		return Decision{Allowed: true, Count: state.count, WindowEnd: state.windowEnd}
	}
	if state.count >= limit {
		return Decision{Allowed: false, Count: state.count, WindowEnd: state.windowEnd}
	}
	state.count++
	rl.entries[key] = state
	return Decision{Allowed: true, Count: state.count, WindowEnd: state.windowEnd}
}

func (rl *memoryLimiter) sweepLoop() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *memoryLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, state := range rl.entries {
		if now.After(state.windowEnd) {
			delete(rl.entries, key)
		}
	}
}

func (rl *memoryLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}

// --- redis limiter -----------------------------------------------------------

type redisLimiter struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisLimiter constructs a Redis-backed limiter so the window is shared
// across replicas. Fails open: on any Redis error the request is allowed.
func NewRedisLimiter(addr, password string, db int) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisLimiter{
		client:  client,
		prefix:  "pulseboard:ratelimit:",
		timeout: 250 * time.Millisecond,
	}, nil
}

func (rl *redisLimiter) Allow(key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	redisKey := rl.prefix + key
	counter, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		slog.Error("gateway: redis rate limiter error", "op", "incr", "err", err)
		return Decision{Allowed: true}
	}
	if counter == 1 {
		if err := rl.client.Expire(ctx, redisKey, window).Err(); err != nil {
			slog.Error("gateway: redis rate limiter error", "op", "expire", "err", err)
		}
	}
	ttl, err := rl.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}
	return Decision{
		Allowed:   int(counter) <= limit,
		Count:     int(counter),
		WindowEnd: time.Now().Add(ttl),
	}
}

func (rl *redisLimiter) Close() {
	_ = rl.client.Close()
}

// --- middleware --------------------------------------------------------------

func (g *Gateway) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.limit <= 0 || g.limiter == nil {
			next(w, r)
			return
		}
		d := g.limiter.Allow(clientIP(r), g.limit, g.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(g.limit))
		remaining := g.limit - d.Count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !d.WindowEnd.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.WindowEnd.Unix(), 10))
		}

		if !d.Allowed {
			jsonErr(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// clientIP extracts the caller address, preferring the first entry of
// X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
