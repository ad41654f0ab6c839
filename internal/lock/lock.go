// Package lock 提供按实体 key 串行化读-改-写流程的锁。
package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrLockTimeout = errors.New("lock: timed out waiting for key")

// Unlock 释放锁，重复调用无副作用
type Unlock func()

type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// Local 进程内按 key 加锁，key 无人使用时自动回收
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size 当前仍被持有或等待的 key 数量
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
