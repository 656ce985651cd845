package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
)

// 缓存键前缀，每个命名空间独立失效。
const (
	mailboxKeyPrefix = "mailbox:email:"
	aliasKeyPrefix   = "alias:"
	sessionKeyPrefix = "session:"
)

// 各命名空间默认 TTL。
const (
	DefaultMailboxTTL = 5 * time.Minute
	DefaultAliasTTL   = 10 * time.Minute
	DefaultSessionTTL = 24 * time.Hour

	// 单次缓存操作超时，避免缓存故障拖慢请求路径。
	defaultOpTimeout = 500 * time.Millisecond
)

// Backend 缓存后端接口，由 Redis 客户端实现，本地实现用于测试。
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	KeysMatching(ctx context.Context, prefix string) ([]string, error)
}

// KeyStats 各命名空间当前键数量，仅供运维接口使用。
type KeyStats struct {
	MailboxKeys int `json:"mailboxKeys"`
	AliasKeys   int `json:"aliasKeys"`
	SessionKeys int `json:"sessionKeys"`
}

// Layer 读穿透缓存层。
//
// 所有读取在缓存故障时降级为未命中，写入与失效尽力而为：
// 缓存永远不会让请求失败，最坏情况只是绕过缓存回源数据库。
type Layer struct {
	backend    Backend
	log        *zap.Logger
	mailboxTTL time.Duration
	aliasTTL   time.Duration
	sessionTTL time.Duration
	opTimeout  time.Duration
}

// NewLayer 创建缓存层，使用默认 TTL。
func NewLayer(backend Backend, log *zap.Logger) *Layer {
	return &Layer{
		backend:    backend,
		log:        log,
		mailboxTTL: DefaultMailboxTTL,
		aliasTTL:   DefaultAliasTTL,
		sessionTTL: DefaultSessionTTL,
		opTimeout:  defaultOpTimeout,
	}
}

// NewLayerWithTTL 创建缓存层并覆盖各命名空间 TTL。
func NewLayerWithTTL(backend Backend, log *zap.Logger, mailboxTTL, aliasTTL, sessionTTL time.Duration) *Layer {
	l := NewLayer(backend, log)
	if mailboxTTL > 0 {
		l.mailboxTTL = mailboxTTL
	}
	if aliasTTL > 0 {
		l.aliasTTL = aliasTTL
	}
	if sessionTTL > 0 {
		l.sessionTTL = sessionTTL
	}
	return l
}

func (l *Layer) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.opTimeout)
}

// ========== 邮箱投影缓存 ==========

// GetMailboxProjection 按邮箱地址读取缓存的投影。
// 返回 (nil, false) 表示未命中，包括后端故障时的降级未命中。
func (l *Layer) GetMailboxProjection(ctx context.Context, address string) (*domain.MailboxProjection, bool) {
	key := mailboxKeyPrefix + address
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	raw, ok, err := l.backend.Get(ctx, key)
	if err != nil {
		l.log.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var projection domain.MailboxProjection
	if err := json.Unmarshal([]byte(raw), &projection); err != nil {
		l.log.Warn("cache entry corrupted, dropping", zap.String("key", key), zap.Error(err))
		l.dropKey(key)
		return nil, false
	}
	return &projection, true
}

// SetMailboxProjection 写入邮箱投影，失败仅记录日志。
func (l *Layer) SetMailboxProjection(ctx context.Context, address string, projection *domain.MailboxProjection) {
	key := mailboxKeyPrefix + address
	data, err := json.Marshal(projection)
	if err != nil {
		l.log.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}

	ctx, cancel := l.opCtx(ctx)
	defer cancel()
	if err := l.backend.SetWithTTL(ctx, key, string(data), l.mailboxTTL); err != nil {
		l.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateMailbox 删除邮箱地址对应的缓存条目。
func (l *Layer) InvalidateMailbox(ctx context.Context, address string) {
	l.invalidate(ctx, mailboxKeyPrefix+address)
}

// ========== 别名存在性缓存 ==========

// GetAliasExists 读取别名占用状态。
// 三态语义：(exists, known) —— known 为 false 表示缓存未记录该别名。
func (l *Layer) GetAliasExists(ctx context.Context, alias string) (exists bool, known bool) {
	key := aliasKeyPrefix + alias
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	raw, ok, err := l.backend.Get(ctx, key)
	if err != nil {
		l.log.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return false, false
	}
	if !ok {
		return false, false
	}

	switch raw {
	case "1":
		return true, true
	case "0":
		return false, true
	default:
		l.log.Warn("cache entry corrupted, dropping", zap.String("key", key), zap.String("value", raw))
		l.dropKey(key)
		return false, false
	}
}

// SetAliasExists 缓存别名占用状态，正负结果都缓存。
func (l *Layer) SetAliasExists(ctx context.Context, alias string, exists bool) {
	key := aliasKeyPrefix + alias
	value := "0"
	if exists {
		value = "1"
	}

	ctx, cancel := l.opCtx(ctx)
	defer cancel()
	if err := l.backend.SetWithTTL(ctx, key, value, l.aliasTTL); err != nil {
		l.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateAlias 删除别名状态缓存。
func (l *Layer) InvalidateAlias(ctx context.Context, alias string) {
	l.invalidate(ctx, aliasKeyPrefix+alias)
}

// ========== 会话缓存 ==========

// GetSession 按会话令牌读取会话描述。
func (l *Layer) GetSession(ctx context.Context, token string) (*domain.SessionDescriptor, bool) {
	key := sessionKeyPrefix + token
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	raw, ok, err := l.backend.Get(ctx, key)
	if err != nil {
		l.log.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var descriptor domain.SessionDescriptor
	if err := json.Unmarshal([]byte(raw), &descriptor); err != nil {
		l.log.Warn("cache entry corrupted, dropping", zap.String("key", key), zap.Error(err))
		l.dropKey(key)
		return nil, false
	}
	return &descriptor, true
}

// SetSession 写入会话描述。
func (l *Layer) SetSession(ctx context.Context, token string, descriptor *domain.SessionDescriptor) {
	key := sessionKeyPrefix + token
	data, err := json.Marshal(descriptor)
	if err != nil {
		l.log.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}

	ctx, cancel := l.opCtx(ctx)
	defer cancel()
	if err := l.backend.SetWithTTL(ctx, key, string(data), l.sessionTTL); err != nil {
		l.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// RefreshSession 会话命中后滑动续期。
func (l *Layer) RefreshSession(ctx context.Context, token string) {
	key := sessionKeyPrefix + token
	ctx, cancel := l.opCtx(ctx)
	defer cancel()
	if err := l.backend.Expire(ctx, key, l.sessionTTL); err != nil {
		l.log.Warn("cache expire failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateSession 删除会话缓存。
func (l *Layer) InvalidateSession(ctx context.Context, token string) {
	l.invalidate(ctx, sessionKeyPrefix+token)
}

// ========== 运维接口 ==========

// Stats 扫描各命名空间的键数量。仅运维接口调用，不在请求路径上。
func (l *Layer) Stats(ctx context.Context) (*KeyStats, error) {
	stats := &KeyStats{}
	for _, ns := range []struct {
		prefix string
		target *int
	}{
		{mailboxKeyPrefix, &stats.MailboxKeys},
		{aliasKeyPrefix, &stats.AliasKeys},
		{sessionKeyPrefix, &stats.SessionKeys},
	} {
		keys, err := l.backend.KeysMatching(ctx, ns.prefix)
		if err != nil {
			return nil, fmt.Errorf("scan cache keys %q: %w", ns.prefix, err)
		}
		count := 0
		for _, key := range keys {
			if strings.HasPrefix(key, ns.prefix) {
				count++
			}
		}
		*ns.target = count
	}
	return stats, nil
}

func (l *Layer) invalidate(ctx context.Context, key string) {
	ctx, cancel := l.opCtx(ctx)
	defer cancel()
	if err := l.backend.Del(ctx, key); err != nil {
		l.log.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

// dropKey 尽力删除损坏条目，使用独立上下文避免继承已取消的请求上下文。
func (l *Layer) dropKey(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	if err := l.backend.Del(ctx, key); err != nil {
		l.log.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}
