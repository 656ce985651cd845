package domain

import "time"

// DisposableEmail 是 Mailbox 的 1:1 报表镜像。
//
// 与邮箱同事务创建，alias/domain/isActive/expiresAt/归属字段随邮箱
// 的每次变更同步更新；邮箱删除时级联销毁。
type DisposableEmail struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID      string     `json:"mailboxId" gorm:"type:varchar(36);uniqueIndex;not null"`
	Alias          string     `json:"alias" gorm:"type:varchar(255);uniqueIndex"`
	Domain         string     `json:"domain" gorm:"type:varchar(100)"`
	IsActive       bool       `json:"isActive" gorm:"default:true"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	GuestSessionID *string    `json:"-" gorm:"type:varchar(255)"`
	UserID         *string    `json:"userId,omitempty" gorm:"type:varchar(36)"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// MirrorOf 用邮箱当前状态构造镜像记录。
func MirrorOf(m *Mailbox, id string) *DisposableEmail {
	return &DisposableEmail{
		ID:             id,
		MailboxID:      m.ID,
		Alias:          m.Alias,
		Domain:         m.Domain,
		IsActive:       m.IsActive,
		ExpiresAt:      m.ExpiresAt,
		GuestSessionID: m.SessionToken,
		UserID:         m.UserID,
		CreatedAt:      m.CreatedAt,
	}
}
