package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/monitoring"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
)

var (
	// ErrInvalidEmail 无效的邮箱格式
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrEmailExists 邮箱已存在
	ErrEmailExists = errors.New("email already exists")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserInactive 用户已被禁用
	ErrUserInactive = errors.New("user is inactive")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Service 认证服务
type Service struct {
	users    storage.UserRepository
	migrator *service.OwnershipMigrator
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewService 创建认证服务。migrator 与 metrics 可以为 nil。
func NewService(users storage.UserRepository, migrator *service.OwnershipMigrator, metrics *monitoring.Metrics, log *zap.Logger) *Service {
	return &Service{
		users:    users,
		migrator: migrator,
		metrics:  metrics,
		log:      log,
	}
}

// RegisterInput 注册输入
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// LoginInput 登录输入
//
// GuestSessionToken 与 MigrateMailbox 一起出现时，登录成功后会尝试
// 把该游客会话持有的邮箱转移给登录用户。
type LoginInput struct {
	Email             string
	Password          string
	GuestSessionToken string
	MigrateMailbox    bool
}

// LoginResult 登录结果。MigratedMailbox 仅在迁移发生且成功时非空。
type LoginResult struct {
	User            *domain.User
	MigratedMailbox *domain.Mailbox
}

// Register 用户注册
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	// 验证邮箱格式
	if !ValidateEmail(input.Email) {
		return nil, ErrInvalidEmail
	}

	// 验证密码强度
	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	// 哈希密码
	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:              uuid.NewString(),
		Email:           strings.ToLower(strings.TrimSpace(input.Email)),
		FullName:        strings.TrimSpace(input.FullName),
		PasswordHash:    passwordHash,
		IsActive:        true,
		IsEmailVerified: false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordUserRegistered()
	}
	s.log.Info("user registered", zap.String("userId", user.ID))
	return user, nil
}

// Login 用户登录
//
// 登录成功后，如请求携带游客会话令牌并同意迁移，则把该会话
// 持有的邮箱转移给登录用户。迁移失败不影响登录。
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		// 不区分"用户不存在"与"密码错误"
		return nil, ErrInvalidCredentials
	}

	// 检查用户是否激活
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	// 验证密码
	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// 更新最后登录时间
	_ = s.users.UpdateLastLogin(ctx, user.ID)

	result := &LoginResult{User: user}

	if input.MigrateMailbox && input.GuestSessionToken != "" && s.migrator != nil {
		if mailbox := s.migrator.MigrateBestEffort(ctx, input.GuestSessionToken, user.ID); mailbox != nil {
			result.MigratedMailbox = mailbox
			if s.metrics != nil {
				s.metrics.RecordMailboxMigrated()
			}
		}
	}

	return result, nil
}

// GetUserByID 根据 ID 获取用户
func (s *Service) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword 验证密码强度
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 72 {
		return errors.New("password must be at most 72 characters")
	}
	return nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
