package backend

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend 基于 go-redis 的连接式远程存储
type RedisBackend struct {
	client *redis.Client
	closed atomic.Bool
}

// NewRedisBackend 使用已有客户端创建远程存储
//
// 客户端需开启 ContextTimeoutEnabled，否则调用方的超时只约束取连接，
// 读写仍按 ReadTimeout/WriteTimeout 阻塞。
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// NewRedisBackendFromOptions 按连接参数创建远程存储，读写遵循上下文截止时间
func NewRedisBackendFromOptions(opts *redis.Options) *RedisBackend {
	o := *opts
	o.ContextTimeoutEnabled = true
	return NewRedisBackend(redis.NewClient(&o))
}

// NewRedisBackendFromURL 解析连接串创建远程存储，password 非空时覆盖连接串中的密码
func NewRedisBackendFromURL(rawURL, password string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	return NewRedisBackendFromOptions(opts), nil
}

// Record 通过 MULTI/EXEC 执行一次滑动窗口记录
func (b *RedisBackend) Record(ctx context.Context, key string, now time.Time, window time.Duration, member string) (Window, error) {
	if b.closed.Load() {
		return Window{}, ErrClosed
	}

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", windowStartBound(now, window))
		card = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		pipe.Expire(ctx, key, time.Duration(expireSeconds(window))*time.Second)
		return nil
	})
	if err != nil {
		return Window{}, fmt.Errorf("redis pipeline for key %s: %w", key, err)
	}

	w := Window{Count: card.Val()}
	if zs := oldest.Val(); len(zs) > 0 {
		w.Oldest = time.UnixMilli(int64(zs[0].Score))
	}

	return w, nil
}

// Delete 删除一个键的窗口
func (b *RedisBackend) Delete(ctx context.Context, key string) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	n, err := b.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del for key %s: %w", key, err)
	}
	return n > 0, nil
}

// Ping 检查连接
func (b *RedisBackend) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.client.Ping(ctx).Err()
}

// Type 获取远程存储类型
func (b *RedisBackend) Type() string {
	return TypeRedis
}

// Close 关闭连接，重复调用无副作用
func (b *RedisBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.client.Close()
}
