package domain

import "errors"

// 业务错误分类。缓存故障（ErrCacheUnavailable）只记录日志、从不上抛给
// 调用方；存储故障包装为 ErrStorage 并以不透明的服务器错误呈现。
var (
	// ErrAliasInvalid 别名不符合格式要求（用户可修正）
	ErrAliasInvalid = errors.New("alias invalid")
	// ErrAliasTaken 别名已被占用
	ErrAliasTaken = errors.New("alias already taken")
	// ErrSessionHasMailbox 会话已持有邮箱
	ErrSessionHasMailbox = errors.New("session already owns a mailbox")
	// ErrMailboxNotFound 邮箱不存在
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrMailboxInactive 邮箱已停用或已过期，拒收投递
	ErrMailboxInactive = errors.New("mailbox inactive or expired")
	// ErrSessionNotFound 会话不存在或未持有邮箱
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuotaExceeded 用户活跃邮箱数达到上限
	ErrQuotaExceeded = errors.New("mailbox quota exceeded")
	// ErrCacheUnavailable 缓存后端不可达（降级为未命中，不对外暴露）
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrStorage 持久化存储故障
	ErrStorage = errors.New("storage failure")
)
