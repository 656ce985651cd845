package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
)

// brokenBackend 模拟缓存后端故障。
type brokenBackend struct{}

var errBackendDown = errors.New("connection refused")

func (brokenBackend) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errBackendDown
}
func (brokenBackend) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return errBackendDown
}
func (brokenBackend) Del(ctx context.Context, keys ...string) error { return errBackendDown }
func (brokenBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return errBackendDown
}
func (brokenBackend) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, errBackendDown
}
func (brokenBackend) KeysMatching(ctx context.Context, prefix string) ([]string, error) {
	return nil, errBackendDown
}

func newTestLayer(t *testing.T) (*Layer, *LocalBackend) {
	t.Helper()
	backend := NewLocalBackend()
	t.Cleanup(func() { _ = backend.Close() })
	return NewLayer(backend, zap.NewNop()), backend
}

func TestMailboxProjectionCache(t *testing.T) {
	layer, backend := newTestLayer(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	projection := &domain.MailboxProjection{
		ID:        "mb-1",
		IsActive:  true,
		ExpiresAt: &expires,
		OwnerKind: domain.OwnerSession,
	}

	t.Run("未命中返回false", func(t *testing.T) {
		got, ok := layer.GetMailboxProjection(ctx, "alice@sparemails.com")
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("写入后命中", func(t *testing.T) {
		layer.SetMailboxProjection(ctx, "alice@sparemails.com", projection)

		got, ok := layer.GetMailboxProjection(ctx, "alice@sparemails.com")
		require.True(t, ok)
		assert.Equal(t, "mb-1", got.ID)
		assert.True(t, got.IsActive)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, expires.Equal(*got.ExpiresAt))
		assert.Equal(t, domain.OwnerSession, got.OwnerKind)
	})

	t.Run("失效后未命中", func(t *testing.T) {
		layer.InvalidateMailbox(ctx, "alice@sparemails.com")

		_, ok := layer.GetMailboxProjection(ctx, "alice@sparemails.com")
		assert.False(t, ok)
	})

	t.Run("损坏条目降级为未命中并被删除", func(t *testing.T) {
		require.NoError(t, backend.SetWithTTL(ctx, mailboxKeyPrefix+"bad@sparemails.com", "{not json", time.Minute))

		_, ok := layer.GetMailboxProjection(ctx, "bad@sparemails.com")
		assert.False(t, ok)

		_, present, err := backend.Get(ctx, mailboxKeyPrefix+"bad@sparemails.com")
		require.NoError(t, err)
		assert.False(t, present)
	})
}

func TestAliasExistsTriState(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()

	t.Run("未记录时known为false", func(t *testing.T) {
		_, known := layer.GetAliasExists(ctx, "fresh")
		assert.False(t, known)
	})

	t.Run("缓存占用结果", func(t *testing.T) {
		layer.SetAliasExists(ctx, "taken", true)

		exists, known := layer.GetAliasExists(ctx, "taken")
		assert.True(t, known)
		assert.True(t, exists)
	})

	t.Run("缓存未占用结果", func(t *testing.T) {
		layer.SetAliasExists(ctx, "free", false)

		exists, known := layer.GetAliasExists(ctx, "free")
		assert.True(t, known)
		assert.False(t, exists)
	})

	t.Run("失效后回到未记录", func(t *testing.T) {
		layer.SetAliasExists(ctx, "gone", true)
		layer.InvalidateAlias(ctx, "gone")

		_, known := layer.GetAliasExists(ctx, "gone")
		assert.False(t, known)
	})
}

func TestSessionCache(t *testing.T) {
	layer, backend := newTestLayer(t)
	ctx := context.Background()

	descriptor := &domain.SessionDescriptor{
		MailboxID: "mb-9",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	t.Run("写入后命中", func(t *testing.T) {
		layer.SetSession(ctx, "token-1", descriptor)

		got, ok := layer.GetSession(ctx, "token-1")
		require.True(t, ok)
		assert.Equal(t, "mb-9", got.MailboxID)
	})

	t.Run("续期延长TTL", func(t *testing.T) {
		layer.RefreshSession(ctx, "token-1")

		ttl, err := backend.TTL(ctx, sessionKeyPrefix+"token-1")
		require.NoError(t, err)
		assert.Greater(t, ttl, 23*time.Hour)
	})

	t.Run("失效后未命中", func(t *testing.T) {
		layer.InvalidateSession(ctx, "token-1")

		_, ok := layer.GetSession(ctx, "token-1")
		assert.False(t, ok)
	})
}

func TestBrokenBackendDegradesToMiss(t *testing.T) {
	layer := NewLayer(brokenBackend{}, zap.NewNop())
	ctx := context.Background()

	t.Run("读取降级为未命中", func(t *testing.T) {
		_, ok := layer.GetMailboxProjection(ctx, "a@sparemails.com")
		assert.False(t, ok)

		_, known := layer.GetAliasExists(ctx, "a")
		assert.False(t, known)

		_, ok = layer.GetSession(ctx, "token")
		assert.False(t, ok)
	})

	t.Run("写入与失效不返回错误", func(t *testing.T) {
		assert.NotPanics(t, func() {
			layer.SetMailboxProjection(ctx, "a@sparemails.com", &domain.MailboxProjection{ID: "mb"})
			layer.SetAliasExists(ctx, "a", true)
			layer.SetSession(ctx, "token", &domain.SessionDescriptor{MailboxID: "mb"})
			layer.InvalidateMailbox(ctx, "a@sparemails.com")
			layer.InvalidateAlias(ctx, "a")
			layer.InvalidateSession(ctx, "token")
			layer.RefreshSession(ctx, "token")
		})
	})

	t.Run("统计接口返回错误", func(t *testing.T) {
		_, err := layer.Stats(ctx)
		assert.Error(t, err)
	})
}

func TestStats(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()

	layer.SetMailboxProjection(ctx, "a@sparemails.com", &domain.MailboxProjection{ID: "mb-a"})
	layer.SetMailboxProjection(ctx, "b@sparemails.com", &domain.MailboxProjection{ID: "mb-b"})
	layer.SetAliasExists(ctx, "a", true)
	layer.SetSession(ctx, "token", &domain.SessionDescriptor{MailboxID: "mb-a"})

	stats, err := layer.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MailboxKeys)
	assert.Equal(t, 1, stats.AliasKeys)
	assert.Equal(t, 1, stats.SessionKeys)
}

func TestLocalBackendExpiry(t *testing.T) {
	backend := NewLocalBackend()
	defer backend.Close()
	ctx := context.Background()

	require.NoError(t, backend.SetWithTTL(ctx, "k", "v", 10*time.Millisecond))

	_, ok, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok, err = backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
