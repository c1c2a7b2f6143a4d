// Package cache 提供 Redis 缓存与分布式锁
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dumeirei/housing-visit-backend/internal/common/config"
)

var rdb *redis.Client

// Init 初始化 Redis 连接
func Init(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	return rdb, nil
}

// Close 关闭 Redis 连接
func Close() error {
	if rdb != nil {
		return rdb.Close()
	}
	return nil
}

// 缓存键前缀
const (
	KeyPrefixBookingValidity = "booking:validity:"
	KeyPrefixLock            = "lock:"
)

// BuildKey 构建缓存键
func BuildKey(prefix string, parts ...string) string {
	return prefix + strings.Join(parts, ":")
}

// IsMiss 判断是否为键不存在
func IsMiss(err error) bool {
	return stderrors.Is(err, redis.Nil)
}

// Store 基于 Redis 的带版本 JSON 缓存
// 每个键是一个 hash：version 字段保存版本号，data 字段保存 JSON
type Store struct {
	rdb *redis.Client
}

// NewStore 创建缓存，rdb 为 nil 时所有读取均视为未命中、写入直接忽略
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Enabled 是否连接了 Redis
func (s *Store) Enabled() bool {
	return s != nil && s.rdb != nil
}

// setIfNewerScript 仅当版本号高于已缓存版本时写入
var setIfNewerScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "version")
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "data", ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

// SetIfNewer 以版本号写入缓存，已有相同或更高版本时不覆盖
// 返回是否写入
func (s *Store) SetIfNewer(ctx context.Context, key string, version int64, value interface{}, expiration time.Duration) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}
	n, err := setIfNewerScript.Run(ctx, s.rdb, []string{key}, version, data, expiration.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Get 获取缓存，未命中返回 redis.Nil
func (s *Store) Get(ctx context.Context, key string, dest interface{}) error {
	if !s.Enabled() {
		return redis.Nil
	}
	data, err := s.rdb.HGet(ctx, key, "data").Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// unlockScript 仅当锁仍属于自己时删除
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 一次性分布式锁
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// TryLock 尝试加锁（SETNX），已被占用时返回 (nil, nil)
// 未连接 Redis 时视为单实例部署，直接返回一个空锁
func (s *Store) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := KeyPrefixLock + name
	if !s.Enabled() {
		return &Lock{key: key}, nil
	}

	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lock{rdb: s.rdb, key: key, token: token}, nil
}

// Unlock 释放锁
func (l *Lock) Unlock(ctx context.Context) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
