package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/config"
	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/pool"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
)

// MailboxRegistry 封装邮箱的创建、查询与生命周期操作。
//
// 读路径走缓存（未命中回源数据库），写路径先写库再删缓存：
// 任何修改之后对应缓存键一律失效，而不是回写新值。
type MailboxRegistry struct {
	repo  storage.MailboxRepository
	cache *cache.Layer
	tasks *pool.WorkerPool
	cfg   *config.Config
	log   *zap.Logger
}

// NewMailboxRegistry 创建邮箱注册服务。
func NewMailboxRegistry(repo storage.MailboxRepository, cacheLayer *cache.Layer, tasks *pool.WorkerPool, cfg *config.Config, log *zap.Logger) *MailboxRegistry {
	return &MailboxRegistry{
		repo:  repo,
		cache: cacheLayer,
		tasks: tasks,
		cfg:   cfg,
		log:   log,
	}
}

// ========== 收件人校验 ==========

// ValidateRecipient 校验收件地址是否指向一个可投递的邮箱。
//
// 先查投影缓存，未命中回源数据库并填充缓存。
// 邮箱不存在返回 ErrMailboxNotFound，已停用或过期返回 ErrMailboxInactive。
// 校验通过后在后台刷新最后访问时间，不阻塞投递路径。
func (r *MailboxRegistry) ValidateRecipient(ctx context.Context, address string) (*domain.MailboxProjection, error) {
	address = domain.NormalizeEmail(address)
	now := time.Now().UTC()

	if projection, ok := r.cache.GetMailboxProjection(ctx, address); ok {
		if !projection.Valid(now) {
			return nil, domain.ErrMailboxInactive
		}
		r.touchLastAccessed(projection.ID)
		return projection, nil
	}

	mailbox, err := r.repo.GetMailboxByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			return nil, domain.ErrMailboxNotFound
		}
		return nil, err
	}

	projection := mailbox.Projection()
	r.cache.SetMailboxProjection(ctx, address, &projection)

	if !projection.Valid(now) {
		return nil, domain.ErrMailboxInactive
	}
	r.touchLastAccessed(mailbox.ID)
	return &projection, nil
}

// ========== 别名可用性 ==========

// CheckAliasAvailable 检查别名是否可注册。
//
// 占用状态缓存为三态：已占用 / 未占用 / 未记录。缓存只是提示，
// 创建时的唯一约束才是最终仲裁。
func (r *MailboxRegistry) CheckAliasAvailable(ctx context.Context, alias string) (bool, error) {
	alias = domain.NormalizeAlias(alias)
	if err := domain.ValidateAlias(alias); err != nil {
		return false, err
	}

	if exists, known := r.cache.GetAliasExists(ctx, alias); known {
		return !exists, nil
	}

	_, err := r.repo.GetMailboxByAddress(ctx, r.addressOf(alias))
	switch {
	case err == nil:
		r.cache.SetAliasExists(ctx, alias, true)
		return false, nil
	case errors.Is(err, domain.ErrMailboxNotFound):
		r.cache.SetAliasExists(ctx, alias, false)
		return true, nil
	default:
		return false, err
	}
}

// ========== 创建 ==========

// CreateAnonymousMailbox 为游客会话创建一次性邮箱。
//
// 一个会话只能持有一个邮箱：先查会话缓存，再回退数据库确认，
// 会话唯一索引只兜并发竞态的底。别名缓存只做快速失败提示，
// 最终由数据库唯一约束仲裁并发冲突。
func (r *MailboxRegistry) CreateAnonymousMailbox(ctx context.Context, sessionToken, alias string) (*domain.Mailbox, error) {
	if _, ok := r.cache.GetSession(ctx, sessionToken); ok {
		return nil, domain.ErrSessionHasMailbox
	}
	if _, err := r.repo.GetMailboxBySessionToken(ctx, sessionToken); err == nil {
		return nil, domain.ErrSessionHasMailbox
	} else if !errors.Is(err, domain.ErrMailboxNotFound) {
		return nil, err
	}

	mailbox, err := r.create(ctx, alias, domain.SessionOwner(sessionToken), r.cfg.Mailbox.AnonymousTTL)
	if err != nil {
		return nil, err
	}

	r.cache.SetSession(ctx, sessionToken, &domain.SessionDescriptor{
		MailboxID: mailbox.ID,
		CreatedAt: mailbox.CreatedAt,
	})
	return mailbox, nil
}

// CreateAuthenticatedMailbox 为认证用户创建一次性邮箱，受配额限制。
func (r *MailboxRegistry) CreateAuthenticatedMailbox(ctx context.Context, userID, alias string) (*domain.Mailbox, error) {
	count, err := r.repo.CountActiveMailboxesByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= int64(r.cfg.Mailbox.MaxPerUser) {
		return nil, domain.ErrQuotaExceeded
	}

	return r.create(ctx, alias, domain.UserOwner(userID), r.cfg.Mailbox.AuthenticatedTTL)
}

func (r *MailboxRegistry) create(ctx context.Context, alias string, owner domain.Owner, ttl time.Duration) (*domain.Mailbox, error) {
	alias = domain.NormalizeAlias(alias)
	if err := domain.ValidateAlias(alias); err != nil {
		return nil, err
	}

	// 快速失败：缓存已确认占用就不必打数据库
	if exists, known := r.cache.GetAliasExists(ctx, alias); known && exists {
		return nil, domain.ErrAliasTaken
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	mailbox := &domain.Mailbox{
		ID:             uuid.NewString(),
		EmailAddress:   r.addressOf(alias),
		Alias:          alias,
		Domain:         r.cfg.Mailbox.Domain,
		IsActive:       true,
		ExpiresAt:      &expiresAt,
		LastAccessedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	mailbox.SetOwner(owner)

	mirror := domain.MirrorOf(mailbox, uuid.NewString())

	if err := r.repo.CreateMailbox(ctx, mailbox, mirror); err != nil {
		if errors.Is(err, domain.ErrAliasTaken) {
			// 数据库仲裁出冲突，顺手把占用状态写进缓存
			r.cache.SetAliasExists(ctx, alias, true)
		}
		return nil, err
	}

	r.cache.SetAliasExists(ctx, alias, true)

	r.log.Info("mailbox created",
		zap.String("mailboxId", mailbox.ID),
		zap.String("address", mailbox.EmailAddress),
		zap.Int("ownerKind", int(owner.Kind())),
		zap.Time("expiresAt", expiresAt),
	)
	return mailbox, nil
}

// ========== 会话查询 ==========

// GetMailboxForSession 返回游客会话持有的邮箱。
//
// 会话缓存命中后仍以数据库记录为准；缓存指向的邮箱已不存在时
// 删除缓存条目并回源。命中刷新会话 TTL（滑动过期）。
func (r *MailboxRegistry) GetMailboxForSession(ctx context.Context, sessionToken string) (*domain.Mailbox, error) {
	if descriptor, ok := r.cache.GetSession(ctx, sessionToken); ok {
		mailbox, err := r.repo.GetMailbox(ctx, descriptor.MailboxID)
		if err == nil {
			r.cache.RefreshSession(ctx, sessionToken)
			r.touchLastAccessed(mailbox.ID)
			return mailbox, nil
		}
		if !errors.Is(err, domain.ErrMailboxNotFound) {
			return nil, err
		}
		// 缓存指向已删除的邮箱，清掉重来
		r.cache.InvalidateSession(ctx, sessionToken)
	}

	mailbox, err := r.repo.GetMailboxBySessionToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	r.cache.SetSession(ctx, sessionToken, &domain.SessionDescriptor{
		MailboxID: mailbox.ID,
		CreatedAt: mailbox.CreatedAt,
	})
	r.touchLastAccessed(mailbox.ID)
	return mailbox, nil
}

// ListMailboxesForUser 返回认证用户的全部邮箱。
func (r *MailboxRegistry) ListMailboxesForUser(ctx context.Context, userID string) ([]domain.Mailbox, error) {
	return r.repo.ListMailboxesByUserID(ctx, userID)
}

// GetOwnedMailbox 返回属主持有的指定邮箱。
// 属主不匹配时返回 ErrMailboxNotFound，不泄露邮箱存在性。
func (r *MailboxRegistry) GetOwnedMailbox(ctx context.Context, id string, owner domain.Owner) (*domain.Mailbox, error) {
	return r.resolveOwned(ctx, id, owner)
}

// ========== 生命周期操作 ==========

// ExtendExpiry 把邮箱过期时间重置为从现在起的一个完整生命周期。
// 匿名邮箱 24 小时，认证邮箱 7 天。修改后对应缓存条目失效。
func (r *MailboxRegistry) ExtendExpiry(ctx context.Context, id string, owner domain.Owner) (*domain.Mailbox, error) {
	mailbox, err := r.resolveOwned(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(r.ttlFor(mailbox.Owner().Kind()))
	if err := r.repo.UpdateMailbox(ctx, mailbox.ID, storage.MailboxUpdate{ExpiresAt: &expiresAt}); err != nil {
		return nil, err
	}
	mailbox.ExpiresAt = &expiresAt

	r.cache.InvalidateMailbox(ctx, mailbox.EmailAddress)

	r.log.Info("mailbox expiry extended",
		zap.String("mailboxId", mailbox.ID),
		zap.Time("expiresAt", expiresAt),
	)
	return mailbox, nil
}

// ToggleActive 切换邮箱的投递开关。修改后投影缓存失效。
func (r *MailboxRegistry) ToggleActive(ctx context.Context, id string, owner domain.Owner) (*domain.Mailbox, error) {
	mailbox, err := r.resolveOwned(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	next := !mailbox.IsActive
	if err := r.repo.UpdateMailbox(ctx, mailbox.ID, storage.MailboxUpdate{IsActive: &next}); err != nil {
		return nil, err
	}
	mailbox.IsActive = next

	r.cache.InvalidateMailbox(ctx, mailbox.EmailAddress)

	r.log.Info("mailbox toggled",
		zap.String("mailboxId", mailbox.ID),
		zap.Bool("isActive", next),
	)
	return mailbox, nil
}

// DeleteMailbox 删除邮箱及其全部邮件，并使所有相关缓存条目失效。
func (r *MailboxRegistry) DeleteMailbox(ctx context.Context, id string, owner domain.Owner) error {
	mailbox, err := r.resolveOwned(ctx, id, owner)
	if err != nil {
		return err
	}

	if err := r.repo.DeleteMailbox(ctx, mailbox.ID); err != nil {
		return err
	}

	r.cache.InvalidateMailbox(ctx, mailbox.EmailAddress)
	r.cache.InvalidateAlias(ctx, mailbox.Alias)
	if mailbox.Owner().Kind() == domain.OwnerSession {
		r.cache.InvalidateSession(ctx, mailbox.Owner().SessionToken())
	}

	r.log.Info("mailbox deleted", zap.String("mailboxId", mailbox.ID))
	return nil
}

// ========== 内部方法 ==========

func (r *MailboxRegistry) resolveOwned(ctx context.Context, id string, owner domain.Owner) (*domain.Mailbox, error) {
	mailbox, err := r.repo.GetMailbox(ctx, id)
	if err != nil {
		return nil, err
	}

	actual := mailbox.Owner()
	if actual.Kind() != owner.Kind() {
		return nil, domain.ErrMailboxNotFound
	}
	switch owner.Kind() {
	case domain.OwnerSession:
		if actual.SessionToken() != owner.SessionToken() {
			return nil, domain.ErrMailboxNotFound
		}
	case domain.OwnerUser:
		if actual.UserID() != owner.UserID() {
			return nil, domain.ErrMailboxNotFound
		}
	default:
		return nil, domain.ErrMailboxNotFound
	}
	return mailbox, nil
}

func (r *MailboxRegistry) ttlFor(kind domain.OwnerKind) time.Duration {
	if kind == domain.OwnerUser {
		return r.cfg.Mailbox.AuthenticatedTTL
	}
	return r.cfg.Mailbox.AnonymousTTL
}

func (r *MailboxRegistry) addressOf(alias string) string {
	return fmt.Sprintf("%s@%s", alias, r.cfg.Mailbox.Domain)
}

// touchLastAccessed 在后台刷新最后访问时间。
// 池满直接放弃，访问时间只是尽力维护的统计字段。
func (r *MailboxRegistry) touchLastAccessed(mailboxID string) {
	if r.tasks == nil {
		return
	}
	submitted := r.tasks.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := r.repo.TouchLastAccessed(ctx, mailboxID); err != nil {
			r.log.Debug("touch last accessed failed", zap.String("mailboxId", mailboxID), zap.Error(err))
		}
	})
	if !submitted {
		r.log.Debug("touch last accessed dropped, worker pool full", zap.String("mailboxId", mailboxID))
	}
}
