package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// fixedWindowScript 原子地检查并计数
// 1. 获取当前值
// 2. 已达上限则返回上限+1，不计数
// 3. 否则 INCR，首次计数时设置窗口过期时间
var fixedWindowScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then
	current = 0
else
	current = tonumber(current)
end

if current >= tonumber(ARGV[1]) then
	return current + 1
end

local newCount = redis.call('INCR', KEYS[1])
if newCount == 1 then
	redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[2]))
end
return newCount`)

// RedisLimiter 基于Redis的固定窗口限流器，可在多实例间共享计数
type RedisLimiter struct {
	client    *redis.Client
	limit     int
	period    time.Duration
	keyPrefix string
}

// NewRedisLimiter 创建基于Redis的限流器
func NewRedisLimiter(client *redis.Client, limit int, period time.Duration, keyPrefix string) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		limit:     limit,
		period:    period,
		keyPrefix: keyPrefix,
	}
}

// Allow 检查并计数
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	result, err := fixedWindowScript.Run(ctx, l.client, []string{l.keyPrefix + key}, l.limit, l.period.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("执行限流脚本失败: %w", err)
	}
	if int(result) > l.limit {
		return ErrLimited
	}
	return nil
}

// Current 获取当前窗口计数
func (l *RedisLimiter) Current(ctx context.Context, key string) (int, error) {
	current, err := l.client.Get(ctx, l.keyPrefix+key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("获取当前计数失败: %w", err)
	}
	return current, nil
}
