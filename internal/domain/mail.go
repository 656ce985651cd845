package domain

import "time"

// Mail 表示投递到某个邮箱的一封邮件，随邮箱级联删除。
type Mail struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID  string    `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	From       string    `json:"from" gorm:"type:varchar(255)"`
	To         string    `json:"to" gorm:"type:varchar(255)"`
	Subject    string    `json:"subject" gorm:"type:varchar(500)"`
	BodyText   string    `json:"bodyText,omitempty" gorm:"type:text"`
	IsRead     bool      `json:"isRead" gorm:"default:false"`
	Size       int64     `json:"size"`
	ReceivedAt time.Time `json:"receivedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}
