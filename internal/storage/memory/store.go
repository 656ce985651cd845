package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
)

// Store 内存存储实现，语义与数据库存储对齐，用于开发环境与测试。
type Store struct {
	mu          sync.RWMutex
	mailboxes   map[string]*domain.Mailbox
	mirrors     map[string]*domain.DisposableEmail // mailboxID -> mirror
	mails       map[string]*domain.Mail
	attachments map[string]*domain.Attachment
	users       map[string]*domain.User
}

// NewStore 创建内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes:   make(map[string]*domain.Mailbox),
		mirrors:     make(map[string]*domain.DisposableEmail),
		mails:       make(map[string]*domain.Mail),
		attachments: make(map[string]*domain.Attachment),
		users:       make(map[string]*domain.User),
	}
}

// ========== Mailbox Repository ==========

// CreateMailbox 创建邮箱及其镜像，并执行与数据库一致的唯一性仲裁。
func (s *Store) CreateMailbox(ctx context.Context, mailbox *domain.Mailbox, mirror *domain.DisposableEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.mailboxes {
		if existing.EmailAddress == mailbox.EmailAddress {
			return domain.ErrAliasTaken
		}
		if mailbox.SessionToken != nil && existing.SessionToken != nil &&
			*existing.SessionToken == *mailbox.SessionToken {
			return domain.ErrSessionHasMailbox
		}
	}

	mb := *mailbox
	mr := *mirror
	s.mailboxes[mb.ID] = &mb
	s.mirrors[mb.ID] = &mr
	return nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, domain.ErrMailboxNotFound
	}
	copied := *mailbox
	return &copied, nil
}

// GetMailboxByAddress 根据地址获取邮箱。
func (s *Store) GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, mailbox := range s.mailboxes {
		if mailbox.EmailAddress == address {
			copied := *mailbox
			return &copied, nil
		}
	}
	return nil, domain.ErrMailboxNotFound
}

// GetMailboxBySessionToken 根据会话令牌获取邮箱。
func (s *Store) GetMailboxBySessionToken(ctx context.Context, token string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, mailbox := range s.mailboxes {
		if mailbox.SessionToken != nil && *mailbox.SessionToken == token {
			copied := *mailbox
			return &copied, nil
		}
	}
	return nil, domain.ErrMailboxNotFound
}

// ListMailboxesByUserID 返回指定用户的全部邮箱。
func (s *Store) ListMailboxesByUserID(ctx context.Context, userID string) ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Mailbox
	for _, mailbox := range s.mailboxes {
		if mailbox.UserID != nil && *mailbox.UserID == userID {
			out = append(out, *mailbox)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CountActiveMailboxesByUserID 统计用户的活跃邮箱数量。
func (s *Store) CountActiveMailboxesByUserID(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, mailbox := range s.mailboxes {
		if mailbox.UserID != nil && *mailbox.UserID == userID && mailbox.IsActive {
			count++
		}
	}
	return count, nil
}

// UpdateMailbox 更新邮箱及其镜像的生命周期字段。
func (s *Store) UpdateMailbox(ctx context.Context, id string, update storage.MailboxUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return domain.ErrMailboxNotFound
	}

	if update.IsActive != nil {
		mailbox.IsActive = *update.IsActive
	}
	if update.ExpiresAt != nil {
		mailbox.ExpiresAt = update.ExpiresAt
	}
	if update.Owner != nil {
		mailbox.SetOwner(*update.Owner)
	}
	mailbox.UpdatedAt = time.Now().UTC()

	if mirror, ok := s.mirrors[id]; ok {
		mirror.IsActive = mailbox.IsActive
		mirror.ExpiresAt = mailbox.ExpiresAt
		mirror.GuestSessionID = mailbox.SessionToken
		mirror.UserID = mailbox.UserID
		mirror.UpdatedAt = mailbox.UpdatedAt
	}
	return nil
}

// TouchLastAccessed 刷新最后访问时间。
func (s *Store) TouchLastAccessed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return domain.ErrMailboxNotFound
	}
	mailbox.LastAccessedAt = time.Now().UTC()
	return nil
}

// DeleteMailbox 幂等删除邮箱及其全部从属记录。
func (s *Store) DeleteMailbox(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.mailboxes, id)
	delete(s.mirrors, id)
	for mailID, mail := range s.mails {
		if mail.MailboxID == id {
			for attID, att := range s.attachments {
				if att.MailID == mailID {
					delete(s.attachments, attID)
				}
			}
			delete(s.mails, mailID)
		}
	}
	return nil
}

// ListExpiredMailboxes 返回已过期的全部邮箱。
func (s *Store) ListExpiredMailboxes(ctx context.Context, now time.Time) ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Mailbox
	for _, mailbox := range s.mailboxes {
		if mailbox.ExpiresAt != nil && mailbox.ExpiresAt.Before(now) {
			out = append(out, *mailbox)
		}
	}
	return out, nil
}

// DeactivateExpiringMailboxes 批量停用窗口内即将过期且仍活跃的邮箱。
func (s *Store) DeactivateExpiringMailboxes(ctx context.Context, from, until time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for id, mailbox := range s.mailboxes {
		if !mailbox.IsActive || mailbox.ExpiresAt == nil {
			continue
		}
		if !mailbox.ExpiresAt.Before(from) && mailbox.ExpiresAt.Before(until) {
			mailbox.IsActive = false
			if mirror, ok := s.mirrors[id]; ok {
				mirror.IsActive = false
			}
			affected++
		}
	}
	return affected, nil
}

// CountMailboxDependents 统计邮箱名下的邮件与附件数量。
func (s *Store) CountMailboxDependents(ctx context.Context, id string) (storage.DependentCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts storage.DependentCounts
	for mailID, mail := range s.mails {
		if mail.MailboxID != id {
			continue
		}
		counts.Mails++
		for _, att := range s.attachments {
			if att.MailID == mailID {
				counts.Attachments++
			}
		}
	}
	return counts, nil
}

// ========== Mail Repository ==========

// SaveMail 保存邮件及其附件元数据。
func (s *Store) SaveMail(ctx context.Context, mail *domain.Mail, attachments []domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *mail
	s.mails[copied.ID] = &copied
	for i := range attachments {
		att := attachments[i]
		s.attachments[att.ID] = &att
	}
	return nil
}

// ListMails 返回某个邮箱下的全部邮件。
func (s *Store) ListMails(ctx context.Context, mailboxID string) ([]domain.Mail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Mail
	for _, mail := range s.mails {
		if mail.MailboxID == mailboxID {
			out = append(out, *mail)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}

// CountMails 统计邮箱邮件数量。
func (s *Store) CountMails(ctx context.Context, mailboxID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, mail := range s.mails {
		if mail.MailboxID == mailboxID {
			count++
		}
	}
	return count, nil
}

// ========== User Repository ==========

// CreateUser 创建用户。
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return storage.ErrUserEmailExists
		}
	}
	copied := *user
	s.users[copied.ID] = &copied
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByEmail 根据邮箱地址获取用户。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = domain.NormalizeEmail(email)
	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

// UpdateLastLogin 更新最后登录时间。
func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	now := time.Now().UTC()
	user.LastLoginAt = &now
	return nil
}

// ========== 工具方法 ==========

// GetMirror 返回邮箱的报表镜像，仅测试使用。
func (s *Store) GetMirror(mailboxID string) (*domain.DisposableEmail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mirror, ok := s.mirrors[mailboxID]
	if !ok {
		return nil, false
	}
	copied := *mirror
	return &copied, true
}

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }

// Health 检查存储健康状态（内存实现总是健康）。
func (s *Store) Health() error { return nil }
