package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
)

// Store 基于 GORM 的持久化存储实现，支持 PostgreSQL 与 MySQL。
type Store struct {
	db *gorm.DB
}

// NewStore 创建 PostgreSQL 存储实例。
func NewStore(dsn string) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn))
}

// NewMySQLStore 创建 MySQL 存储实例。
func NewMySQLStore(dsn string) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn))
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例。
func NewStoreWithDialector(dialector gorm.Dialector) (*Store, error) {
	// 不开 TranslateError：统一翻译会丢掉约束名，
	// 唯一约束冲突需要按命中的索引区分，见 uniqueViolation。
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}

	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Migrate 自动迁移数据库表结构。
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Mailbox{},
		&domain.DisposableEmail{},
		&domain.Mail{},
		&domain.Attachment{},
	)
}

// uniqueViolation 判断是否唯一约束冲突，并返回能定位索引的文本：
// PostgreSQL 给出约束名，MySQL 的 1062 消息中带键名。
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName, pgErr.Code == "23505"
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Message, myErr.Number == 1062
	}
	return "", false
}

// mailboxConflict 把创建邮箱时命中的唯一索引映射为领域错误。
// 未识别的索引返回 nil，由调用方按存储错误处理。
func mailboxConflict(constraint string) error {
	switch {
	case strings.Contains(constraint, "session_token"):
		return domain.ErrSessionHasMailbox
	case strings.Contains(constraint, "email"):
		return domain.ErrAliasTaken
	}
	return nil
}

// ========== Mailbox Repository ==========

// CreateMailbox 在同一事务内创建邮箱及其报表镜像。
//
// 唯一约束是别名冲突的最终仲裁：即使缓存认为别名空闲，
// 这里的冲突仍会以 domain.ErrAliasTaken 返回。
func (s *Store) CreateMailbox(ctx context.Context, mailbox *domain.Mailbox, mirror *domain.DisposableEmail) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(mailbox).Error; err != nil {
			return err
		}
		return tx.Create(mirror).Error
	})
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if conflict := mailboxConflict(constraint); conflict != nil {
				return conflict
			}
		}
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMailboxNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return &mailbox, nil
}

// GetMailboxByAddress 根据完整地址获取邮箱，地址需已小写规范化。
func (s *Store) GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.WithContext(ctx).Where("email_address = ?", address).First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMailboxNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return &mailbox, nil
}

// GetMailboxBySessionToken 根据会话令牌获取邮箱。
func (s *Store) GetMailboxBySessionToken(ctx context.Context, token string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.WithContext(ctx).Where("session_token = ?", token).First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMailboxNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return &mailbox, nil
}

// ListMailboxesByUserID 返回指定用户的全部邮箱。
func (s *Store) ListMailboxesByUserID(ctx context.Context, userID string) ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&mailboxes).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return mailboxes, nil
}

// CountActiveMailboxesByUserID 统计用户当前活跃的邮箱数量（配额检查用）。
func (s *Store) CountActiveMailboxesByUserID(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Mailbox{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return count, nil
}

// UpdateMailbox 在同一事务内更新邮箱及其镜像的生命周期字段。
func (s *Store) UpdateMailbox(ctx context.Context, id string, update storage.MailboxUpdate) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var mailbox domain.Mailbox
		if err := tx.Where("id = ?", id).First(&mailbox).Error; err != nil {
			return err
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

		if err := tx.Save(&mailbox).Error; err != nil {
			return err
		}

		// 镜像与邮箱在同一事务内保持一致
		mirrorFields := map[string]interface{}{
			"is_active":        mailbox.IsActive,
			"expires_at":       mailbox.ExpiresAt,
			"guest_session_id": mailbox.SessionToken,
			"user_id":          mailbox.UserID,
		}
		return tx.Model(&domain.DisposableEmail{}).
			Where("mailbox_id = ?", id).
			Updates(mirrorFields).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrMailboxNotFound
		}
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// TouchLastAccessed 刷新邮箱的最后访问时间。
func (s *Store) TouchLastAccessed(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&domain.Mailbox{}).
		Where("id = ?", id).
		Update("last_accessed_at", time.Now().UTC())
	if result.Error != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrMailboxNotFound
	}
	return nil
}

// DeleteMailbox 删除邮箱及其全部从属记录。
//
// 幂等：删除不存在的 ID 返回 nil，清扫任务与请求路径
// 对同一邮箱的竞争删除因此不会互相报错。
func (s *Store) DeleteMailbox(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 级联顺序：附件 -> 邮件 -> 镜像 -> 邮箱
		if err := tx.Where("mail_id IN (?)",
			tx.Model(&domain.Mail{}).Select("id").Where("mailbox_id = ?", id),
		).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("mailbox_id = ?", id).Delete(&domain.Mail{}).Error; err != nil {
			return err
		}
		if err := tx.Where("mailbox_id = ?", id).Delete(&domain.DisposableEmail{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Mailbox{}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// ListExpiredMailboxes 返回在 now 时刻已过期的全部邮箱。
func (s *Store) ListExpiredMailboxes(ctx context.Context, now time.Time) ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Find(&mailboxes).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return mailboxes, nil
}

// DeactivateExpiringMailboxes 批量停用 [from, until) 内即将过期且仍活跃的邮箱。
//
// is_active = true 过滤保证了重复执行的幂等性。
func (s *Store) DeactivateExpiringMailboxes(ctx context.Context, from, until time.Time) (int64, error) {
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Mailbox{}).
			Where("expires_at IS NOT NULL AND expires_at >= ? AND expires_at < ? AND is_active = ?", from, until, true).
			Update("is_active", false)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		if affected == 0 {
			return nil
		}

		return tx.Model(&domain.DisposableEmail{}).
			Where("expires_at IS NOT NULL AND expires_at >= ? AND expires_at < ? AND is_active = ?", from, until, true).
			Update("is_active", false).Error
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return affected, nil
}

// CountMailboxDependents 统计邮箱名下的邮件与附件数量（删除前报告用）。
func (s *Store) CountMailboxDependents(ctx context.Context, id string) (storage.DependentCounts, error) {
	var counts storage.DependentCounts

	err := s.db.WithContext(ctx).Model(&domain.Mail{}).
		Where("mailbox_id = ?", id).
		Count(&counts.Mails).Error
	if err != nil {
		return counts, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	err = s.db.WithContext(ctx).Model(&domain.Attachment{}).
		Where("mail_id IN (?)",
			s.db.Model(&domain.Mail{}).Select("id").Where("mailbox_id = ?", id),
		).
		Count(&counts.Attachments).Error
	if err != nil {
		return counts, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return counts, nil
}

// ========== Mail Repository ==========

// SaveMail 在同一事务内保存邮件及其附件元数据。
func (s *Store) SaveMail(ctx context.Context, mail *domain.Mail, attachments []domain.Attachment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(mail).Error; err != nil {
			return err
		}
		if len(attachments) > 0 {
			return tx.Create(&attachments).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// ListMails 返回某个邮箱下的全部邮件。
func (s *Store) ListMails(ctx context.Context, mailboxID string) ([]domain.Mail, error) {
	var mails []domain.Mail
	err := s.db.WithContext(ctx).
		Where("mailbox_id = ?", mailboxID).
		Order("received_at DESC").
		Find(&mails).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return mails, nil
}

// CountMails 统计邮箱邮件数量。
func (s *Store) CountMails(ctx context.Context, mailboxID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Mail{}).
		Where("mailbox_id = ?", mailboxID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return count, nil
}

// ========== User Repository ==========

// CreateUser 创建用户。
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if _, ok := uniqueViolation(err); ok {
			return storage.ErrUserEmailExists
		}
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱地址获取用户。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("email = ?", domain.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return &user, nil
}

// UpdateLastLogin 更新用户最后登录时间。
func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_login_at", now).Error
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// ========== 工具方法 ==========

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
