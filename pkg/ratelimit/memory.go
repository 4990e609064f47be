package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// MemoryLimiter 进程内固定窗口限流器
// 计数不跨进程共享，进程重启后清零。
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*window
	limit    int
	period   time.Duration
	clock    Clock
}

// NewMemoryLimiter 创建进程内限流器，clock 为 nil 时使用系统时间
func NewMemoryLimiter(limit int, period time.Duration, clock Clock) *MemoryLimiter {
	if clock == nil {
		clock = realClock{}
	}
	return &MemoryLimiter{
		counters: make(map[string]*window),
		limit:    limit,
		period:   period,
		clock:    clock,
	}
}

// Allow 检查并计数
func (l *MemoryLimiter) Allow(_ context.Context, key string) error {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.counters[key]
	if !ok {
		w = &window{start: now}
		l.counters[key] = w
	}
	if now.Sub(w.start) >= l.period {
		w.count = 0
		w.start = now
	}
	if w.count >= l.limit {
		return ErrLimited
	}
	w.count++
	return nil
}

// Current 返回 key 在当前窗口内的计数
func (l *MemoryLimiter) Current(key string) int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.counters[key]
	if !ok || now.Sub(w.start) >= l.period {
		return 0
	}
	return w.count
}

// Sweep 清理已过期的窗口，避免长时间运行后 map 无限增长
func (l *MemoryLimiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.counters {
		if now.Sub(w.start) >= l.period {
			delete(l.counters, key)
			removed++
		}
	}
	return removed
}
