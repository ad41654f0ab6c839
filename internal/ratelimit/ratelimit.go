package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 固定窗口计数：每个 key 在 window 内最多 limit 次
type Limiter interface {
	// Allow 记一次请求；被拒绝时 retryAfter 为窗口剩余时间
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
	Limit() int
}

type window struct {
	start time.Time
	count int
}

// Local 单实例部署用的进程内限流
type Local struct {
	mu        sync.Mutex
	windows   map[string]*window
	limit     int
	length    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewLocal(limit int, length time.Duration) *Local {
	return &Local{
		windows:   make(map[string]*window),
		limit:     limit,
		length:    length,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *Local) Limit() int { return l.limit }

func (l *Local) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.length {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	if w.count > l.limit {
		return false, w.start.Add(l.length).Sub(now), nil
	}
	return true, 0, nil
}

// sweep 每个窗口清理一次过期的 key，避免 map 无限增长
func (l *Local) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.length {
		return
	}
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.length {
			delete(l.windows, key)
		}
	}
	l.lastSweep = now
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
