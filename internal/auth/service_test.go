package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/config"
	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage/memory"
)

func newTestAuth(t *testing.T) (*Service, *service.MailboxRegistry, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	backend := cache.NewLocalBackend()
	t.Cleanup(func() { _ = backend.Close() })
	layer := cache.NewLayer(backend, zap.NewNop())

	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			Domain:           "sparemails.com",
			AnonymousTTL:     24 * time.Hour,
			AuthenticatedTTL: 7 * 24 * time.Hour,
			MaxPerUser:       5,
		},
	}

	registry := service.NewMailboxRegistry(store, layer, nil, cfg, zap.NewNop())
	migrator := service.NewOwnershipMigrator(store, layer, cfg, zap.NewNop())
	svc := NewService(store, migrator, nil, zap.NewNop())
	return svc, registry, store
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("注册成功", func(t *testing.T) {
		svc, _, _ := newTestAuth(t)

		user, err := svc.Register(ctx, RegisterInput{
			Email:    "Alice@Example.com",
			Password: "password123",
			FullName: "Alice",
		})
		require.NoError(t, err)

		assert.Equal(t, "alice@example.com", user.Email)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, "password123", user.PasswordHash)
		assert.True(t, CheckPassword("password123", user.PasswordHash))
	})

	t.Run("邮箱已存在", func(t *testing.T) {
		svc, _, _ := newTestAuth(t)

		_, err := svc.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "password123"})
		require.NoError(t, err)

		_, err = svc.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "password456"})
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("邮箱格式无效", func(t *testing.T) {
		svc, _, _ := newTestAuth(t)

		_, err := svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "password123"})
		assert.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("密码太短", func(t *testing.T) {
		svc, _, _ := newTestAuth(t)

		_, err := svc.Register(ctx, RegisterInput{Email: "carol@example.com", Password: "short"})
		assert.Error(t, err)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("登录成功", func(t *testing.T) {
		svc, _, _ := newTestAuth(t)

		registered, err := svc.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "password123"})
		require.NoError(t, err)

		result, err := svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password123"})
		require.NoError(t, err)
		assert.Equal(t, registered.ID, result.User.ID)
		assert.Nil(t, result.MigratedMailbox)
	})

	t.Run("密码错误", func(t *testing.T) {
		svc, _, _ := newTestAuth(t)

		_, err := svc.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "password123"})
		require.NoError(t, err)

		_, err = svc.Login(ctx, LoginInput{Email: "bob@example.com", Password: "wrong-password"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("用户不存在", func(t *testing.T) {
		svc, _, _ := newTestAuth(t)

		_, err := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "password123"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("登录时迁移游客邮箱", func(t *testing.T) {
		svc, registry, _ := newTestAuth(t)

		user, err := svc.Register(ctx, RegisterInput{Email: "carol@example.com", Password: "password123"})
		require.NoError(t, err)

		guestMailbox, err := registry.CreateAnonymousMailbox(ctx, "guest-session", "carol-tmp")
		require.NoError(t, err)

		result, err := svc.Login(ctx, LoginInput{
			Email:             "carol@example.com",
			Password:          "password123",
			GuestSessionToken: "guest-session",
			MigrateMailbox:    true,
		})
		require.NoError(t, err)

		require.NotNil(t, result.MigratedMailbox)
		assert.Equal(t, guestMailbox.ID, result.MigratedMailbox.ID)
		assert.Equal(t, domain.OwnerUser, result.MigratedMailbox.Owner().Kind())
		assert.Equal(t, user.ID, result.MigratedMailbox.Owner().UserID())
	})

	t.Run("未同意迁移时不迁移", func(t *testing.T) {
		svc, registry, _ := newTestAuth(t)

		_, err := svc.Register(ctx, RegisterInput{Email: "dave@example.com", Password: "password123"})
		require.NoError(t, err)

		guestMailbox, err := registry.CreateAnonymousMailbox(ctx, "guest-session", "dave-tmp")
		require.NoError(t, err)

		result, err := svc.Login(ctx, LoginInput{
			Email:             "dave@example.com",
			Password:          "password123",
			GuestSessionToken: "guest-session",
			MigrateMailbox:    false,
		})
		require.NoError(t, err)
		assert.Nil(t, result.MigratedMailbox)

		// 邮箱仍归游客会话所有
		mailbox, err := registry.GetMailboxForSession(ctx, "guest-session")
		require.NoError(t, err)
		assert.Equal(t, guestMailbox.ID, mailbox.ID)
	})

	t.Run("迁移失败不影响登录", func(t *testing.T) {
		svc, _, _ := newTestAuth(t)

		_, err := svc.Register(ctx, RegisterInput{Email: "erin@example.com", Password: "password123"})
		require.NoError(t, err)

		result, err := svc.Login(ctx, LoginInput{
			Email:             "erin@example.com",
			Password:          "password123",
			GuestSessionToken: "no-such-session",
			MigrateMailbox:    true,
		})
		require.NoError(t, err)
		assert.Nil(t, result.MigratedMailbox)
	})
}
