package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LocalBackend 本地内存缓存后端
//
// 特点：
// - 实现与 Redis 后端相同的 Backend 接口
// - 支持 TTL 过期
// - 自动清理过期条目
// - 用于测试与不带 Redis 的单机部署
type LocalBackend struct {
	data sync.Map

	closeOnce sync.Once
	done      chan struct{}
}

type localEntry struct {
	value     string
	expiresAt time.Time
}

func (e *localEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewLocalBackend 创建本地缓存后端并启动定期清理。
func NewLocalBackend() *LocalBackend {
	backend := &LocalBackend{
		done: make(chan struct{}),
	}

	go backend.cleanupLoop()

	return backend
}

// Get 获取缓存值
func (b *LocalBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, ok := b.data.Load(key)
	if !ok {
		return "", false, nil
	}

	entry := val.(*localEntry)
	if entry.expired(time.Now()) {
		b.data.Delete(key)
		return "", false, nil
	}

	return entry.value, true, nil
}

// SetWithTTL 设置缓存值，ttl <= 0 表示永不过期
func (b *LocalBackend) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := &localEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	b.data.Store(key, entry)
	return nil
}

// Del 删除缓存值
func (b *LocalBackend) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		b.data.Delete(key)
	}
	return nil
}

// Expire 重设键的过期时间
func (b *LocalBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	val, ok := b.data.Load(key)
	if !ok {
		return nil
	}

	entry := val.(*localEntry)
	if entry.expired(time.Now()) {
		b.data.Delete(key)
		return nil
	}

	b.data.Store(key, &localEntry{
		value:     entry.value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// TTL 查询键的剩余过期时间
func (b *LocalBackend) TTL(ctx context.Context, key string) (time.Duration, error) {
	val, ok := b.data.Load(key)
	if !ok {
		return 0, nil
	}

	entry := val.(*localEntry)
	if entry.expiresAt.IsZero() {
		return -1, nil
	}

	remaining := time.Until(entry.expiresAt)
	if remaining < 0 {
		b.data.Delete(key)
		return 0, nil
	}
	return remaining, nil
}

// KeysMatching 返回指定前缀的全部键
func (b *LocalBackend) KeysMatching(ctx context.Context, prefix string) ([]string, error) {
	now := time.Now()
	var keys []string
	b.data.Range(func(key, value interface{}) bool {
		entry := value.(*localEntry)
		if entry.expired(now) {
			b.data.Delete(key)
			return true
		}
		if k := key.(string); strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
		return true
	})
	return keys, nil
}

// Close 停止清理协程
func (b *LocalBackend) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

// cleanupLoop 定期清理过期条目
func (b *LocalBackend) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			now := time.Now()
			b.data.Range(func(key, value interface{}) bool {
				entry := value.(*localEntry)
				if entry.expired(now) {
					b.data.Delete(key)
				}
				return true
			})
		}
	}
}
