package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/transport"
)

// slidingWindow trims entries older than the window, counts what is left and
// admits the call only while under the limit. Returns -1 when limited.
// KEYS[1]=key ARGV: now_ms, window_start_ms, window_ms, member, limit
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)
local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, windowMs)
  return count + 1
end
return -1
`)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	l.now = now
	return l
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	windowMs := l.window.Milliseconds()
	member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

	res, err := slidingWindow.Run(ctx, l.rdb, []string{l.prefix + key},
		nowMs, nowMs-windowMs, windowMs, member, l.limit).Int()
	if err != nil {
		return false, err
	}
	return res >= 0, nil
}

// RateLimit throttles by client IP. Redis failures let the call through.
func RateLimit(limiter Limiter, lg *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + ClientIP(r)
			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				lg.Warn("rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				lg.Info("rate limited", "key", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				base.HandleServiceError(w, internal.NewRateLimitedError("Too many requests, please slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
