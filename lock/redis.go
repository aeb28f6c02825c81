package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

// ErrNotHeld is returned when releasing a lock whose lease expired or was taken
// over by another holder.
var ErrNotHeld = errors.New("lock not held")

// releaseScript deletes the key only if it still holds the caller's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process talking to the same Redis server.
// Each lock is a key with a random token and a TTL, so a crashed holder cannot
// block a group forever.
type Redis struct {
	rdb    goredis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
	prefix string
	log    *logger.Logger
}

// RedisOptions configures a Redis locker.
type RedisOptions struct {
	Addr   string
	TTL    time.Duration
	Prefix string
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(opts RedisOptions, log *logger.Logger) (*Redis, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb, opts, log), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb goredis.UniversalClient, opts RedisOptions, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.Nop()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "mealgraph:lock:"
	}
	return &Redis{
		rdb:    rdb,
		ttl:    ttl,
		poll:   100 * time.Millisecond,
		prefix: prefix,
		log:    log.With("service", "RedisLocker"),
	}
}

// Acquire implements Locker. It polls until the key is free or ctx is done.
func (r *Redis) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	k := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	r.log.Debug("lock acquired", "key", k)
	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, r.rdb, []string{k}, token).Int64()
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if n == 0 {
			r.log.Warn("lock lease lost before release", "key", k)
			return fmt.Errorf("release %s: %w", key, ErrNotHeld)
		}
		return nil
	}, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
