package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateAlias(t *testing.T) {
	t.Run("合法别名", func(t *testing.T) {
		for _, alias := range []string{"foo123", "abc", "a_b-c", "ABC123", "12345678901234567890"} {
			assert.NoError(t, ValidateAlias(alias), alias)
		}
	})

	t.Run("非法别名", func(t *testing.T) {
		for _, alias := range []string{"", "ab", "a", "has space", "太长太长太长", "with@at", "123456789012345678901", "dot.dot"} {
			assert.ErrorIs(t, ValidateAlias(alias), ErrAliasInvalid, alias)
		}
	})
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "foo@bar.com", NormalizeEmail("  Foo@Bar.COM "))
}

func TestOwnerExclusive(t *testing.T) {
	m := &Mailbox{ID: "m1"}

	t.Run("会话归属", func(t *testing.T) {
		m.SetOwner(SessionOwner("s1"))
		assert.NotNil(t, m.SessionToken)
		assert.Nil(t, m.UserID)
		assert.Equal(t, OwnerSession, m.Owner().Kind())
		assert.Equal(t, "s1", m.Owner().SessionToken())
	})

	t.Run("迁移到用户归属后会话令牌被清空", func(t *testing.T) {
		m.SetOwner(UserOwner("u1"))
		assert.Nil(t, m.SessionToken)
		assert.NotNil(t, m.UserID)
		assert.Equal(t, OwnerUser, m.Owner().Kind())
		assert.Equal(t, "u1", m.Owner().UserID())
	})
}

func TestMailboxExpired(t *testing.T) {
	now := time.Now()

	t.Run("无过期时间永不过期", func(t *testing.T) {
		m := &Mailbox{}
		assert.False(t, m.Expired(now))
	})

	t.Run("过期时间已过", func(t *testing.T) {
		past := now.Add(-time.Minute)
		m := &Mailbox{ExpiresAt: &past}
		assert.True(t, m.Expired(now))
	})
}

func TestProjectionValid(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, MailboxProjection{IsActive: true, ExpiresAt: &future}.Valid(now))
	assert.False(t, MailboxProjection{IsActive: false, ExpiresAt: &future}.Valid(now))
	assert.False(t, MailboxProjection{IsActive: true, ExpiresAt: &past}.Valid(now))
	assert.True(t, MailboxProjection{IsActive: true}.Valid(now))
}
