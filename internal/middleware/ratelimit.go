package middleware

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Counter counts hits for a key within a fixed window and returns the total
// so far.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter keeps fixed-window counters in redis so limits hold across
// server instances.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimiter limits requests per user, or per client IP before
// authentication.
type RateLimiter struct {
	counter Counter
	name    string
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewRateLimiter(counter Counter, name string, limit int, window time.Duration) *RateLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RateLimiter{
		counter: counter,
		name:    name,
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (rl *RateLimiter) key(r *http.Request) string {
	bucket := rl.now().Unix() / int64(rl.window/time.Second)
	subject := clientIP(r)
	if id := GetUserID(r.Context()); id != uuid.Nil {
		subject = "user:" + id.String()
	}
	return fmt.Sprintf("ratelimit:%s:%s:%d", rl.name, subject, bucket)
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := rl.counter.Hit(r.Context(), rl.key(r), rl.window)
		if err != nil {
			// fail open
			log.Printf("Rate limiter %s: %v", rl.name, err)
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window/time.Second)))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
