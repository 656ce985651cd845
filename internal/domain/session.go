package domain

import "time"

// SessionDescriptor 是仅存于缓存的会话描述。
//
// MailboxID 为空字符串表示会话尚未持有邮箱。缓存中不存在该描述
// 并不代表底层没有状态：Mailbox.SessionToken 才是归属的权威来源。
type SessionDescriptor struct {
	MailboxID string    `json:"mailboxId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
