package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/config"
	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
)

// OwnershipMigrator 在用户登录时把游客会话持有的邮箱转移给该用户。
//
// 迁移是尽力而为的：任何失败只记录日志，绝不阻断登录流程。
type OwnershipMigrator struct {
	repo  storage.MailboxRepository
	cache *cache.Layer
	cfg   *config.Config
	log   *zap.Logger
}

// NewOwnershipMigrator 创建属主迁移服务。
func NewOwnershipMigrator(repo storage.MailboxRepository, cacheLayer *cache.Layer, cfg *config.Config, log *zap.Logger) *OwnershipMigrator {
	return &OwnershipMigrator{
		repo:  repo,
		cache: cacheLayer,
		cfg:   cfg,
		log:   log,
	}
}

// Migrate 把 sessionToken 持有的邮箱转移给 userID。
//
// 转移后邮箱升级为认证生命周期（从现在起一个完整的认证 TTL），
// 会话令牌被清除，游客会话缓存与投影缓存随之失效。
// 会话未持有邮箱或邮箱已停用时返回 (nil, nil)，属于正常情况而非错误。
func (m *OwnershipMigrator) Migrate(ctx context.Context, sessionToken, userID string) (*domain.Mailbox, error) {
	mailbox, err := m.repo.GetMailboxBySessionToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// 已停用的邮箱（含清扫器预停用的）不参与迁移
	if !mailbox.IsActive {
		return nil, nil
	}

	owner := domain.UserOwner(userID)
	expiresAt := time.Now().UTC().Add(m.cfg.Mailbox.AuthenticatedTTL)

	update := storage.MailboxUpdate{
		Owner:     &owner,
		ExpiresAt: &expiresAt,
	}
	if err := m.repo.UpdateMailbox(ctx, mailbox.ID, update); err != nil {
		return nil, err
	}

	mailbox.SetOwner(owner)
	mailbox.ExpiresAt = &expiresAt

	// 生命周期变更统一走失效，新属主的投影由下一次读取重建
	m.cache.InvalidateSession(ctx, sessionToken)
	m.cache.InvalidateMailbox(ctx, mailbox.EmailAddress)

	m.log.Info("mailbox ownership migrated",
		zap.String("mailboxId", mailbox.ID),
		zap.String("userId", userID),
		zap.Time("expiresAt", expiresAt),
	)
	return mailbox, nil
}

// MigrateBestEffort 供登录路径调用的包装：失败只记录日志。
func (m *OwnershipMigrator) MigrateBestEffort(ctx context.Context, sessionToken, userID string) *domain.Mailbox {
	if sessionToken == "" {
		return nil
	}

	mailbox, err := m.Migrate(ctx, sessionToken, userID)
	if err != nil {
		m.log.Warn("mailbox ownership migration failed",
			zap.String("userId", userID),
			zap.Error(err),
		)
		return nil
	}
	return mailbox
}
