package domain

import "time"

// User 表示注册用户的业务实体。
type User struct {
	ID              string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email           string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	FullName        string     `json:"fullName,omitempty" gorm:"type:varchar(100)"`
	PasswordHash    string     `json:"-" gorm:"type:varchar(255)"` // 不返回给前端
	IsActive        bool       `json:"isActive" gorm:"default:true"`
	IsEmailVerified bool       `json:"isEmailVerified" gorm:"default:false"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
}
