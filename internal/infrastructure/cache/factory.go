package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/truecost/backend/internal/domain"
)

const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

// Options selects and configures a cache backend
type Options struct {
	Type            string
	RedisURL        string
	Prefix          string
	CleanupInterval time.Duration
}

// New creates the cache backend named by opts.Type
func New(ctx context.Context, opts Options) (domain.CacheRepository, error) {
	switch opts.Type {
	case "", TypeMemory:
		return NewMemoryCache(opts.CleanupInterval), nil
	case TypeRedis:
		return NewRedisCache(ctx, opts.RedisURL, opts.Prefix)
	default:
		return nil, fmt.Errorf("unknown cache type %q", opts.Type)
	}
}
