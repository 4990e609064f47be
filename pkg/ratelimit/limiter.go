package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrLimited 当前窗口内请求数已达上限
var ErrLimited = errors.New("rate limit exceeded")

// Limiter 固定窗口计数器
//
// Allow 在未超限时计数加一并返回 nil；超限返回 ErrLimited 且不计数。
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Clock 便于测试替换时间
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
