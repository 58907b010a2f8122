package app

import (
	"strings"

	"github.com/charlesng35/taskhub/internal/cache"
)

// RedisClientConfig maps the cache section onto cache.RedisConfig. The
// second return is false when Redis is disabled or has no address, in which
// case rate limiting falls back to the database store.
func (c CacheConfig) RedisClientConfig() (cache.RedisConfig, bool) {
	cfg := cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
	return cfg, c.Redis.Enabled && cfg.Address != ""
}
