package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis store.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Redis implements Store on top of a go-redis client.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis store. The connection is lazy; call Ping to
// verify reachability at startup.
func NewRedis(cfg RedisConfig) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// HGetAll implements Store.
func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

// HSet implements Store.
func (r *Redis) HSet(ctx context.Context, key string, fields map[string]string) error {
	return r.client.HSet(ctx, key, fields).Err()
}

// SAdd implements Store.
func (r *Redis) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.SAdd(ctx, key, args...).Err()
}

// SRem implements Store.
func (r *Redis) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.SRem(ctx, key, args...).Err()
}

// SMembers implements Store.
func (r *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

// RPush implements Store.
func (r *Redis) RPush(ctx context.Context, key, value string) error {
	return r.client.RPush(ctx, key, value).Err()
}

// LPop implements Store.
func (r *Redis) LPop(ctx context.Context, key string) (string, error) {
	val, err := r.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	return val, err
}

// LRem implements Store. Count 0 removes every occurrence.
func (r *Redis) LRem(ctx context.Context, key, value string) (int64, error) {
	return r.client.LRem(ctx, key, 0, value).Result()
}

// LRange implements Store.
func (r *Redis) LRange(ctx context.Context, key string) ([]string, error) {
	return r.client.LRange(ctx, key, 0, -1).Result()
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	return val, err
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

// Ping implements Store.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}
