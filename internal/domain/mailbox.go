package domain

import (
	"time"
)

// OwnerKind 邮箱归属类型。
type OwnerKind int

const (
	// OwnerNone 无归属（理论状态，创建时即会绑定归属）
	OwnerNone OwnerKind = iota
	// OwnerSession 匿名会话持有
	OwnerSession
	// OwnerUser 注册用户持有
	OwnerUser
)

// Owner 表示邮箱的归属方，会话令牌与用户 ID 互斥。
//
// 通过构造函数创建，保证任意时刻最多只有一个归属键有值，
// 避免 sessionToken 与 userId 同时存在的非法状态。
type Owner struct {
	kind         OwnerKind
	sessionToken string
	userID       string
}

// SessionOwner 构造匿名会话归属。
func SessionOwner(token string) Owner {
	return Owner{kind: OwnerSession, sessionToken: token}
}

// UserOwner 构造注册用户归属。
func UserOwner(userID string) Owner {
	return Owner{kind: OwnerUser, userID: userID}
}

// Kind 返回归属类型。
func (o Owner) Kind() OwnerKind { return o.kind }

// SessionToken 返回会话令牌（仅 OwnerSession 时非空）。
func (o Owner) SessionToken() string { return o.sessionToken }

// UserID 返回用户 ID（仅 OwnerUser 时非空）。
func (o Owner) UserID() string { return o.userID }

// Mailbox 表示一个一次性邮箱的业务实体。
//
// emailAddress 全局唯一且已小写规范化；ExpiresAt 为 nil 表示永不过期，
// 一旦过期无论 IsActive 与否都会被清扫任务回收。
type Mailbox struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EmailAddress   string     `json:"emailAddress" gorm:"type:varchar(255);uniqueIndex;not null"`
	Alias          string     `json:"alias" gorm:"type:varchar(255);not null"` // @ 之前的本地部分
	Domain         string     `json:"domain" gorm:"type:varchar(100);index"`
	IsActive       bool       `json:"isActive" gorm:"default:true"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	LastAccessedAt time.Time  `json:"lastAccessedAt"`
	SessionToken   *string    `json:"-" gorm:"type:varchar(255);uniqueIndex"` // 匿名访问令牌，与 UserID 互斥
	UserID         *string    `json:"userId,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Owner 以标签化形式返回邮箱归属。
func (m *Mailbox) Owner() Owner {
	switch {
	case m.SessionToken != nil && *m.SessionToken != "":
		return SessionOwner(*m.SessionToken)
	case m.UserID != nil && *m.UserID != "":
		return UserOwner(*m.UserID)
	default:
		return Owner{}
	}
}

// SetOwner 按归属变体写入底层字段，总是先清空两侧再写入。
func (m *Mailbox) SetOwner(o Owner) {
	m.SessionToken = nil
	m.UserID = nil
	switch o.kind {
	case OwnerSession:
		token := o.sessionToken
		m.SessionToken = &token
	case OwnerUser:
		id := o.userID
		m.UserID = &id
	}
}

// Expired 判断邮箱在 now 时刻是否已过期。
func (m *Mailbox) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// MailboxProjection 是写入缓存的最小投影。
//
// 缓存只保存校验收件人所需的字段，业务字段一律回源数据库读取，
// 避免缓存中的陈旧业务状态被误用。
type MailboxProjection struct {
	ID        string     `json:"id"`
	IsActive  bool       `json:"isActive"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	OwnerKind OwnerKind  `json:"ownerKind"`
}

// Projection 构造邮箱的缓存投影。
func (m *Mailbox) Projection() MailboxProjection {
	return MailboxProjection{
		ID:        m.ID,
		IsActive:  m.IsActive,
		ExpiresAt: m.ExpiresAt,
		OwnerKind: m.Owner().Kind(),
	}
}

// Valid 判断投影在 now 时刻是否还能接收邮件。
func (p MailboxProjection) Valid(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ExpiresAt != nil && p.ExpiresAt.Before(now) {
		return false
	}
	return true
}
