package storage

import (
	"context"
	"errors"
	"time"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
)

var (
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrUserEmailExists 用户邮箱已被注册
	ErrUserEmailExists = errors.New("user email already exists")
)

// MailboxUpdate 描述一次邮箱生命周期变更。
//
// 非 nil 的字段会被应用到 Mailbox 及其 DisposableEmail 镜像，
// 两者必须在同一事务内落盘，防止部分失败导致记录分叉。
type MailboxUpdate struct {
	IsActive  *bool
	ExpiresAt *time.Time
	Owner     *domain.Owner
}

// DependentCounts 删除前统计的从属记录数量，用于清扫报告。
type DependentCounts struct {
	Mails       int64
	Attachments int64
}

// MailboxRepository 定义邮箱数据存取操作。
//
// DeleteMailbox 是幂等的：删除不存在的 ID 不报错；
// UpdateMailbox 作用于已删除的 ID 返回 domain.ErrMailboxNotFound。
type MailboxRepository interface {
	CreateMailbox(ctx context.Context, mailbox *domain.Mailbox, mirror *domain.DisposableEmail) error
	GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error)
	GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error)
	GetMailboxBySessionToken(ctx context.Context, token string) (*domain.Mailbox, error)
	ListMailboxesByUserID(ctx context.Context, userID string) ([]domain.Mailbox, error)
	CountActiveMailboxesByUserID(ctx context.Context, userID string) (int64, error)
	UpdateMailbox(ctx context.Context, id string, update MailboxUpdate) error
	TouchLastAccessed(ctx context.Context, id string) error
	DeleteMailbox(ctx context.Context, id string) error
	ListExpiredMailboxes(ctx context.Context, now time.Time) ([]domain.Mailbox, error)
	DeactivateExpiringMailboxes(ctx context.Context, from, until time.Time) (int64, error)
	CountMailboxDependents(ctx context.Context, id string) (DependentCounts, error)
}

// MailRepository 定义邮件数据存取操作。
type MailRepository interface {
	SaveMail(ctx context.Context, mail *domain.Mail, attachments []domain.Attachment) error
	ListMails(ctx context.Context, mailboxID string) ([]domain.Mail, error)
	CountMails(ctx context.Context, mailboxID string) (int64, error)
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, userID string) error
}

// Store 定义完整的存储接口。
type Store interface {
	MailboxRepository
	MailRepository
	UserRepository

	Close() error
	Health() error
}
