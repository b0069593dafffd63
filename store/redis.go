package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"amc"`
	TTL      time.Duration `yaml:"ttl"` // 0 keeps calculators forever
	PoolSize int           `yaml:"pool_size" default:"10" validate:"gte=0"`
}

// Redis stores calculators as plain string values under prefix:calculator:id.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (r *Redis) Put(ctx context.Context, id string, data []byte) error {
	return r.client.Set(ctx, r.key(id), data, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, id string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	return r.client.Unlink(ctx, r.key(id)).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(id string) string {
	if r.prefix == "" {
		return "calculator:" + id
	}
	return fmt.Sprintf("%s:calculator:%s", r.prefix, id)
}
