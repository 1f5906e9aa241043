package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	xerrors "UB-Client/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 别名缓存的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Redis 使用 Redis 字符串键缓存作者别名。
type Redis struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// NewRedis 创建 Redis 缓存并检查连接。
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return newRedis(client, cfg.Prefix, cfg.TTL), nil
}

func newRedis(client redisClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "ub:alias:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(author common.Address) string {
	return r.prefix + strings.ToLower(author.Hex())
}

// GetAlias reads the alias of author. A missing key is a miss, not an error.
func (r *Redis) GetAlias(ctx context.Context, author common.Address) (string, bool, error) {
	alias, err := r.client.Get(ctx, r.key(author)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get alias: %w", err)
	}
	return alias, true, nil
}

// SetAlias writes alias with the configured TTL.
func (r *Redis) SetAlias(ctx context.Context, author common.Address, alias string) error {
	if err := r.client.Set(ctx, r.key(author), alias, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set alias: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
