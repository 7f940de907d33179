// Package middleware holds HTTP middleware shared by the public routers.
package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a redis-backed token bucket keyed per caller. A nil limiter
// or a non-positive rate disables limiting.
type RateLimiter struct {
	client *redis.Client
	script *redis.Script
	// ratePerMin refills the bucket; burst caps it.
	ratePerMin int
	burst      int
}

// NewRateLimiter builds a limiter allowing ratePerMin requests per minute
// with burst capacity of the same size.
func NewRateLimiter(client *redis.Client, ratePerMin int) *RateLimiter {
	if client == nil || ratePerMin <= 0 {
		return nil
	}
	return &RateLimiter{
		client:     client,
		script:     redis.NewScript(tokenBucketLua),
		ratePerMin: ratePerMin,
		burst:      ratePerMin,
	}
}

// Middleware enforces the limit per caller identity.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "rl:" + callerIdentity(r)
		ratePerSec := float64(l.ratePerMin) / 60

		result, err := l.script.Run(r.Context(), l.client, []string{key},
			time.Now().UnixMilli(), ratePerSec, l.burst, 1).Result()
		if err != nil {
			// A broken limiter should not take the API down with it.
			next.ServeHTTP(w, r)
			return
		}

		values, ok := result.([]interface{})
		if !ok || len(values) != 2 {
			next.ServeHTTP(w, r)
			return
		}
		allowed, _ := values[0].(int64)
		if allowed != 1 {
			waitSec, _ := values[1].(int64)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Max(1, float64(waitSec)))))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerIdentity(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return auth
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

const tokenBucketLua = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'timestamp')
local tokens = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now_ms

local delta = math.max(0, now_ms - last)
tokens = math.min(capacity, tokens + delta * rate / 1000)

local allowed = 0
local wait = 0
if tokens >= requested then
  allowed = 1
  tokens = tokens - requested
else
  wait = math.ceil((requested - tokens) / rate)
end

redis.call('HMSET', key, 'tokens', tokens, 'timestamp', now_ms)
redis.call('PEXPIRE', key, math.ceil(capacity / rate * 1000))

return {allowed, wait}
`
