package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRateLimitPrefix = "predictpro:rate_limit"

// paymentQuotaScript admits a request while the caller's window quota is not used up.
// Refused requests do not consume quota, so a client hammering initiate or status
// is unblocked as soon as its window rolls over.
//
// KEYS[1] quota counter, ARGV[1] quota, ARGV[2] window in ms.
// Returns {admitted (0|1), used, ttl_ms}.
var paymentQuotaScript = redis.NewScript(`
local quota = tonumber(ARGV[1])
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
local admitted = 0
if used < quota then
  used = redis.call("INCR", KEYS[1])
  admitted = 1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {admitted, used, ttl}
`)

// RedisRateLimiter keeps per-user payment quotas in Redis so every replica sees the
// same counts.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = defaultRateLimitPrefix
	}
	return &RedisRateLimiter{client: client, prefix: trimmed}
}

// Allow spends one unit of the user's quota for scope. A limiter without a client,
// or called with a non-positive quota or window, admits everything.
func (r *RedisRateLimiter) Allow(ctx context.Context, scope string, userID string, quota int, window time.Duration) (RateLimitDecision, error) {
	if r == nil || r.client == nil || quota <= 0 || window <= 0 {
		return RateLimitDecision{Allowed: true}, nil
	}
	key, ok := r.quotaKey(scope, userID)
	if !ok {
		return RateLimitDecision{Allowed: true}, nil
	}

	window = window.Truncate(time.Second)
	if window < time.Second {
		window = time.Second
	}

	reply, err := paymentQuotaScript.Run(ctx, r.client, []string{key}, quota, window.Milliseconds()).Int64Slice()
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("payment quota %s: %w", scope, err)
	}
	return quotaDecision(reply, quota, window)
}

// quotaKey is <prefix>:<scope>:<user id>, e.g. predictpro:rate_limit:mpesa_initiate:<uuid>.
func (r *RedisRateLimiter) quotaKey(scope, userID string) (string, bool) {
	scope = strings.TrimSpace(scope)
	userID = strings.TrimSpace(userID)
	if scope == "" || userID == "" {
		return "", false
	}
	return r.prefix + ":" + scope + ":" + userID, true
}

func quotaDecision(reply []int64, quota int, window time.Duration) (RateLimitDecision, error) {
	if len(reply) != 3 {
		return RateLimitDecision{}, fmt.Errorf("payment quota script returned %d values, want 3", len(reply))
	}
	admitted, used, ttlMs := reply[0] == 1, int(reply[1]), reply[2]

	resetIn := time.Duration(ttlMs) * time.Millisecond
	if resetIn <= 0 || resetIn > window {
		resetIn = window
	}
	remaining := quota - used
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitDecision{Allowed: admitted, Remaining: remaining, ResetIn: resetIn}, nil
}
