package usercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/stylefront/internal/sessionapi"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces keys written by Redis.
const DefaultRedisPrefix = "stylefront:user:"

// redisCommands is the subset of the go-redis client the cache uses.
type redisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Redis is a Cache shared between front end replicas. Expiry is delegated
// to Redis through SET with a TTL.
type Redis struct {
	client redisCommands
	prefix string
	ttl    time.Duration
}

var _ Cache = (*Redis)(nil)

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedis connects to Redis and checks the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisWithClient(client, opts.Prefix, opts.TTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return newRedis(client, prefix, ttl)
}

func newRedis(client redisCommands, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Get(ctx context.Context, key string) (*sessionapi.User, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached user: %w", err)
	}

	var user sessionapi.User
	if err := json.Unmarshal(val, &user); err != nil {
		return nil, fmt.Errorf("decoding cached user: %w", err)
	}
	return &user, nil
}

func (r *Redis) Put(ctx context.Context, key string, user *sessionapi.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding cached user: %w", err)
	}
	return r.client.Set(ctx, r.key(key), data, r.ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
