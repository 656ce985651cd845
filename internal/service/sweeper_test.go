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
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage/memory"
)

func newTestSweeper(t *testing.T) (*ExpirySweeper, *MailboxRegistry, *MailService, *memory.Store, *cache.Layer) {
	t.Helper()
	store := memory.NewStore()
	backend := cache.NewLocalBackend()
	t.Cleanup(func() { _ = backend.Close() })
	layer := cache.NewLayer(backend, zap.NewNop())
	cfg := testConfig()
	registry := NewMailboxRegistry(store, layer, nil, cfg, zap.NewNop())
	mails := NewMailService(store, zap.NewNop(), nil)
	sweeper := NewExpirySweeper(store, layer, cfg, zap.NewNop(), nil)
	return sweeper, registry, mails, store, layer
}

func expireMailbox(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	past := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, store.UpdateMailbox(context.Background(), id, storage.MailboxUpdate{ExpiresAt: &past}))
}

func TestSweeperRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("删除过期邮箱及从属数据", func(t *testing.T) {
		sweeper, registry, mails, store, layer := newTestSweeper(t)

		expired, err := registry.CreateAnonymousMailbox(ctx, "session-1", "doomed")
		require.NoError(t, err)
		alive, err := registry.CreateAnonymousMailbox(ctx, "session-2", "alive")
		require.NoError(t, err)

		// 过期邮箱名下有两封邮件，其中一封带附件
		_, err = mails.Deliver(ctx, DeliverMailInput{MailboxID: expired.ID, From: "a@b.c", To: expired.EmailAddress, Subject: "one"})
		require.NoError(t, err)
		_, err = mails.Deliver(ctx, DeliverMailInput{
			MailboxID: expired.ID, From: "a@b.c", To: expired.EmailAddress, Subject: "two",
			Attachments: []AttachmentInput{{Filename: "f.txt", ContentType: "text/plain", Size: 10}},
		})
		require.NoError(t, err)

		expireMailbox(t, store, expired.ID)

		summary, err := sweeper.RunOnce(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Reaped)
		assert.Equal(t, int64(2), summary.ReapedMails)
		assert.Equal(t, int64(1), summary.ReapedAttachments)
		assert.Equal(t, 0, summary.Errors)

		// 过期邮箱消失，存活邮箱不受影响
		_, err = store.GetMailbox(ctx, expired.ID)
		assert.ErrorIs(t, err, domain.ErrMailboxNotFound)
		_, err = store.GetMailbox(ctx, alive.ID)
		assert.NoError(t, err)

		// 邮件随邮箱删除
		remaining, err := mails.List(ctx, expired.ID)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		// 相关缓存条目已失效
		_, ok := layer.GetSession(ctx, "session-1")
		assert.False(t, ok)
		_, known := layer.GetAliasExists(ctx, "doomed")
		assert.False(t, known)
	})

	t.Run("预停用窗口内即将过期的邮箱", func(t *testing.T) {
		sweeper, registry, _, store, _ := newTestSweeper(t)

		expiring, err := registry.CreateAnonymousMailbox(ctx, "session-1", "expiring")
		require.NoError(t, err)
		distant, err := registry.CreateAnonymousMailbox(ctx, "session-2", "distant")
		require.NoError(t, err)

		// 30 分钟后过期，落在 1 小时预停用窗口内
		soon := time.Now().Add(30 * time.Minute).UTC()
		require.NoError(t, store.UpdateMailbox(ctx, expiring.ID, storage.MailboxUpdate{ExpiresAt: &soon}))

		summary, err := sweeper.RunOnce(ctx)
		require.NoError(t, err)

		assert.Equal(t, 0, summary.Reaped)
		assert.Equal(t, int64(1), summary.Deactivated)

		stored, err := store.GetMailbox(ctx, expiring.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsActive)

		// 窗口之外的邮箱保持活跃
		stored, err = store.GetMailbox(ctx, distant.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsActive)

		// 镜像同步停用
		mirror, ok := store.GetMirror(expiring.ID)
		require.True(t, ok)
		assert.False(t, mirror.IsActive)
	})

	t.Run("重复运行是幂等的", func(t *testing.T) {
		sweeper, registry, _, store, _ := newTestSweeper(t)

		expired, err := registry.CreateAnonymousMailbox(ctx, "session-1", "doomed")
		require.NoError(t, err)
		expiring, err := registry.CreateAnonymousMailbox(ctx, "session-2", "expiring")
		require.NoError(t, err)

		expireMailbox(t, store, expired.ID)
		soon := time.Now().Add(30 * time.Minute).UTC()
		require.NoError(t, store.UpdateMailbox(ctx, expiring.ID, storage.MailboxUpdate{ExpiresAt: &soon}))

		first, err := sweeper.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Reaped)
		assert.Equal(t, int64(1), first.Deactivated)

		second, err := sweeper.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, second.Reaped)
		assert.Equal(t, int64(0), second.Deactivated)
		assert.Equal(t, 0, second.Errors)
	})

	t.Run("同一时间只允许一次清扫", func(t *testing.T) {
		sweeper, _, _, _, _ := newTestSweeper(t)

		sweeper.running.Store(true)
		_, err := sweeper.RunOnce(ctx)
		assert.ErrorIs(t, err, ErrSweepInProgress)

		sweeper.running.Store(false)
		_, err = sweeper.RunOnce(ctx)
		assert.NoError(t, err)
	})
}

func TestSweeperLifecycle(t *testing.T) {
	sweeper, _, _, _, _ := newTestSweeper(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper.Start(ctx)
	// Stop 等待循环退出，不应死锁
	sweeper.Stop()
}
