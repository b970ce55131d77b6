package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Scopes keep independent buckets for inbound deployments and outbound callbacks.
const (
	ScopeDeploy   = "deploy"
	ScopeCallback = "callback"
)

const keyPrefix = "autodeploy:rl"

type Bucket struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

func (b Bucket) Enabled() bool {
	return b.RequestsPerMinute > 0 && b.BurstSize > 0
}

func NewBucket(requestsPerMinute, burstSize int) Bucket {
	return Bucket{RequestsPerMinute: requestsPerMinute, BurstSize: burstSize}
}

// Decision is one bucket check. Remaining is the whole tokens left after an allowed take.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error)
}

// TokenBucketLimiter keeps one bucket per scope and subject in redis, refilled lazily on
// every check so idle subjects cost nothing but an expiring hash.
type TokenBucketLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewTokenBucketLimiter(rdb *redis.Client) *TokenBucketLimiter {
	return &TokenBucketLimiter{rdb: rdb, now: time.Now}
}

// takeToken refills the bucket for the time since its last check and takes one token.
// ARGV: refill per ms, capacity, now (ms), ttl (ms). Returns {allowed, wait_ms, remaining}.
var takeToken = redis.NewScript(`
local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local per_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now
if last > now then last = now end
tokens = math.min(capacity, tokens + (now - last) * per_ms)

local allowed, wait_ms = 0, 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
elseif per_ms > 0 then
  wait_ms = math.max(1, math.ceil((1 - tokens) / per_ms))
else
  wait_ms = 60000
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[4]))
return {allowed, wait_ms, math.floor(tokens)}
`)

func (l *TokenBucketLimiter) Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error) {
	if l == nil || l.rdb == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "unknown"
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}

	ratePerSec := float64(bucket.RequestsPerMinute) / 60.0
	capacity := float64(bucket.BurstSize)
	res, err := takeToken.Run(ctx, l.rdb, []string{bucketKey(scope, subject)},
		ratePerSec/1000.0, capacity, now().UnixMilli(), computeTTLMS(ratePerSec, capacity)).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit %s: %w", scope, err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		return Decision{}, fmt.Errorf("unexpected redis ratelimit response: %T", res)
	}

	allowed, _ := vals[0].(int64)
	waitMS, _ := vals[1].(int64)
	remaining, _ := vals[2].(int64)
	if allowed == 1 {
		return Decision{Allowed: true, Remaining: int(remaining)}, nil
	}
	return Decision{RetryAfter: time.Duration(max(waitMS, 1)) * time.Millisecond}, nil
}

// bucketKey hashes the subject so client addresses and callback URLs never appear in redis keys.
func bucketKey(scope, subject string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, scope, sha256Hex(subject))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func computeTTLMS(ratePerSec float64, capacity float64) int64 {
	// Default to 2 minutes when rate/capacity are invalid.
	const minTTL = 30 * time.Second
	const maxTTL = 1 * time.Hour

	if ratePerSec <= 0 || capacity <= 0 {
		return int64((2 * time.Minute).Milliseconds())
	}

	// Time to refill from empty to full, then keep it around for ~2 cycles.
	fillSeconds := capacity / ratePerSec
	ttl := time.Duration(math.Ceil(fillSeconds*2.0))*time.Second + 5*time.Second

	if ttl < minTTL {
		ttl = minTTL
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}
	return ttl.Milliseconds()
}

// KeyPattern matches every bucket key stored for scope.
func KeyPattern(scope string) string {
	return fmt.Sprintf("%s:%s:*", keyPrefix, scope)
}
