package providers

import "github.com/go-redis/redis/v8"

// NewRedisProvider returns nil when addr is empty; callers treat a nil client as
// "rate limiting disabled".
func NewRedisProvider(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}
