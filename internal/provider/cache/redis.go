package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"marketwatch/internal/provider"
)

// DefaultPrefix namespaces every key as "<prefix>:quote:<BASE>/<QUOTE>".
const DefaultPrefix = "marketwatch"

// Redis is a Store backed by plain string keys holding JSON quotes.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*Redis)(nil)

// RedisConfig configures NewRedis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the Redis connection.
func (c *Redis) Close() error { return c.client.Close() }

// Key is the Redis key holding inst's latest quote.
func (c *Redis) Key(inst provider.Instrument) string {
	return c.prefix + ":quote:" + inst.String()
}

func (c *Redis) Put(ctx context.Context, q provider.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(q.Instrument()), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Redis) Get(ctx context.Context, inst provider.Instrument) (provider.Quote, error) {
	data, err := c.client.Get(ctx, c.Key(inst)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return provider.Quote{}, ErrMiss
		}
		return provider.Quote{}, fmt.Errorf("redis get: %w", err)
	}
	var q provider.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return provider.Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	return q, nil
}

// All scans the prefix and returns quotes sorted by instrument.
func (c *Redis) All(ctx context.Context) ([]provider.Quote, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+":quote:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return []provider.Quote{}, nil
	}
	sort.Strings(keys)

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([]provider.Quote, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var q provider.Quote
		if err := json.Unmarshal([]byte(s), &q); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, q)
	}
	return out, nil
}
