package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage/memory"
)

func newTestMigrator(t *testing.T) (*OwnershipMigrator, *MailboxRegistry, *memory.Store, *cache.Layer) {
	t.Helper()
	store := memory.NewStore()
	backend := cache.NewLocalBackend()
	t.Cleanup(func() { _ = backend.Close() })
	layer := cache.NewLayer(backend, zap.NewNop())
	cfg := testConfig()
	registry := NewMailboxRegistry(store, layer, nil, cfg, zap.NewNop())
	migrator := NewOwnershipMigrator(store, layer, cfg, zap.NewNop())
	return migrator, registry, store, layer
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("迁移成功", func(t *testing.T) {
		migrator, registry, store, layer := newTestMigrator(t)

		created, err := registry.CreateAnonymousMailbox(ctx, "session-1", "alice")
		require.NoError(t, err)

		mailbox, err := migrator.Migrate(ctx, "session-1", "user-1")
		require.NoError(t, err)
		require.NotNil(t, mailbox)

		// 属主变为用户，会话令牌被清除
		assert.Equal(t, domain.OwnerUser, mailbox.Owner().Kind())
		assert.Equal(t, "user-1", mailbox.Owner().UserID())
		assert.Empty(t, mailbox.Owner().SessionToken())

		// 升级为认证生命周期
		require.NotNil(t, mailbox.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *mailbox.ExpiresAt, time.Minute)

		// 数据库与镜像同步
		stored, err := store.GetMailbox(ctx, created.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.SessionToken)
		require.NotNil(t, stored.UserID)
		assert.Equal(t, "user-1", *stored.UserID)

		mirror, ok := store.GetMirror(created.ID)
		require.True(t, ok)
		assert.Nil(t, mirror.GuestSessionID)
		require.NotNil(t, mirror.UserID)
		assert.Equal(t, "user-1", *mirror.UserID)

		// 游客会话缓存已清除
		_, ok = layer.GetSession(ctx, "session-1")
		assert.False(t, ok)

		// 原会话不再能访问该邮箱
		_, err = registry.GetMailboxForSession(ctx, "session-1")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		// 迁移后的邮箱出现在用户名下
		mailboxes, err := registry.ListMailboxesForUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, mailboxes, 1)
		assert.Equal(t, created.ID, mailboxes[0].ID)
	})

	t.Run("已停用的邮箱不迁移", func(t *testing.T) {
		migrator, registry, store, _ := newTestMigrator(t)

		created, err := registry.CreateAnonymousMailbox(ctx, "session-1", "carol")
		require.NoError(t, err)

		_, err = registry.ToggleActive(ctx, created.ID, domain.SessionOwner("session-1"))
		require.NoError(t, err)

		mailbox, err := migrator.Migrate(ctx, "session-1", "user-1")
		assert.NoError(t, err)
		assert.Nil(t, mailbox)

		// 属主与有效期保持原样
		stored, err := store.GetMailbox(ctx, created.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.UserID)
		require.NotNil(t, stored.SessionToken)
		assert.Equal(t, "session-1", *stored.SessionToken)
		require.NotNil(t, stored.ExpiresAt)
		assert.WithinDuration(t, *created.ExpiresAt, *stored.ExpiresAt, time.Second)
	})

	t.Run("会话未持有邮箱时静默返回", func(t *testing.T) {
		migrator, _, _, _ := newTestMigrator(t)

		mailbox, err := migrator.Migrate(ctx, "no-such-session", "user-1")
		assert.NoError(t, err)
		assert.Nil(t, mailbox)
	})

	t.Run("尽力而为包装不返回错误", func(t *testing.T) {
		migrator, _, _, _ := newTestMigrator(t)

		assert.Nil(t, migrator.MigrateBestEffort(ctx, "", "user-1"))
		assert.Nil(t, migrator.MigrateBestEffort(ctx, "no-such-session", "user-1"))
	})

	t.Run("迁移后投影缓存失效", func(t *testing.T) {
		migrator, registry, _, layer := newTestMigrator(t)

		created, err := registry.CreateAnonymousMailbox(ctx, "session-1", "bob")
		require.NoError(t, err)

		_, err = registry.ValidateRecipient(ctx, created.EmailAddress)
		require.NoError(t, err)

		_, err = migrator.Migrate(ctx, "session-1", "user-1")
		require.NoError(t, err)

		_, ok := layer.GetMailboxProjection(ctx, created.EmailAddress)
		assert.False(t, ok)
	})
}
