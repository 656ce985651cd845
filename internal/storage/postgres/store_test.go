package postgres

import (
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
)

func TestUniqueViolation(t *testing.T) {
	t.Run("PostgreSQL唯一约束冲突带约束名", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23505", ConstraintName: "idx_mailboxes_session_token"}
		constraint, ok := uniqueViolation(err)
		require.True(t, ok)
		assert.Equal(t, "idx_mailboxes_session_token", constraint)
	})

	t.Run("MySQL重复键冲突带键名消息", func(t *testing.T) {
		err := &mysqldriver.MySQLError{
			Number:  1062,
			Message: "Duplicate entry 'tok-1' for key 'mailboxes.idx_mailboxes_session_token'",
		}
		constraint, ok := uniqueViolation(err)
		require.True(t, ok)
		assert.Contains(t, constraint, "session_token")
	})

	t.Run("包装后的错误仍可识别", func(t *testing.T) {
		inner := &pgconn.PgError{Code: "23505", ConstraintName: "idx_mailboxes_email_address"}
		constraint, ok := uniqueViolation(fmt.Errorf("create mailbox: %w", inner))
		require.True(t, ok)
		assert.Equal(t, "idx_mailboxes_email_address", constraint)
	})

	t.Run("其他数据库错误不算冲突", func(t *testing.T) {
		_, ok := uniqueViolation(&pgconn.PgError{Code: "23503"})
		assert.False(t, ok)

		_, ok = uniqueViolation(&mysqldriver.MySQLError{Number: 1213})
		assert.False(t, ok)

		_, ok = uniqueViolation(fmt.Errorf("connection refused"))
		assert.False(t, ok)
	})
}

func TestMailboxConflict(t *testing.T) {
	t.Run("会话索引映射为会话冲突", func(t *testing.T) {
		assert.ErrorIs(t, mailboxConflict("idx_mailboxes_session_token"), domain.ErrSessionHasMailbox)
		assert.ErrorIs(t,
			mailboxConflict("Duplicate entry 'tok-1' for key 'mailboxes.idx_mailboxes_session_token'"),
			domain.ErrSessionHasMailbox)
	})

	t.Run("地址索引映射为别名占用", func(t *testing.T) {
		assert.ErrorIs(t, mailboxConflict("idx_mailboxes_email_address"), domain.ErrAliasTaken)
		assert.ErrorIs(t,
			mailboxConflict("Duplicate entry 'a@sparemails.com' for key 'mailboxes.idx_mailboxes_email_address'"),
			domain.ErrAliasTaken)
	})

	t.Run("未识别的索引不映射", func(t *testing.T) {
		assert.Nil(t, mailboxConflict("idx_users_something_else"))
	})
}
