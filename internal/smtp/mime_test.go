package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmail(t *testing.T) {
	t.Run("纯文本邮件", func(t *testing.T) {
		raw := []byte("From: sender@example.com\r\n" +
			"To: abc@sparemails.com\r\n" +
			"Subject: hello\r\n" +
			"\r\n" +
			"plain body\r\n")

		parsed, err := ParseEmail(raw)
		require.NoError(t, err)

		assert.Equal(t, "hello", parsed.Subject)
		assert.Equal(t, "sender@example.com", parsed.From)
		assert.Contains(t, parsed.Text, "plain body")
		assert.Empty(t, parsed.Attachments)
	})

	t.Run("RFC2047编码的主题", func(t *testing.T) {
		raw := []byte("From: sender@example.com\r\n" +
			"Subject: =?UTF-8?B?5L2g5aW9?=\r\n" +
			"\r\n" +
			"body\r\n")

		parsed, err := ParseEmail(raw)
		require.NoError(t, err)

		assert.Equal(t, "你好", parsed.Subject)
	})

	t.Run("多部分邮件提取附件元数据", func(t *testing.T) {
		raw := []byte("From: sender@example.com\r\n" +
			"Subject: with attachment\r\n" +
			"Content-Type: multipart/mixed; boundary=\"xyz\"\r\n" +
			"\r\n" +
			"--xyz\r\n" +
			"Content-Type: text/plain\r\n" +
			"\r\n" +
			"see attachment\r\n" +
			"--xyz\r\n" +
			"Content-Type: application/pdf\r\n" +
			"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
			"Content-Transfer-Encoding: base64\r\n" +
			"\r\n" +
			"aGVsbG8gd29ybGQ=\r\n" +
			"--xyz--\r\n")

		parsed, err := ParseEmail(raw)
		require.NoError(t, err)

		assert.Contains(t, parsed.Text, "see attachment")
		require.Len(t, parsed.Attachments, 1)
		assert.Equal(t, "report.pdf", parsed.Attachments[0].Filename)
		assert.Equal(t, "application/pdf", parsed.Attachments[0].ContentType)
		assert.Equal(t, int64(len("hello world")), parsed.Attachments[0].Size)
	})

	t.Run("HTML正文作为回退", func(t *testing.T) {
		raw := []byte("From: sender@example.com\r\n" +
			"Subject: html only\r\n" +
			"Content-Type: text/html; charset=utf-8\r\n" +
			"\r\n" +
			"<p>hi</p>\r\n")

		parsed, err := ParseEmail(raw)
		require.NoError(t, err)

		assert.Empty(t, parsed.Text)
		assert.Contains(t, parsed.Body(), "<p>hi</p>")
	})
}

func TestConnectionLimiter(t *testing.T) {
	t.Run("超过并发上限时拒绝", func(t *testing.T) {
		limiter := NewConnectionLimiter(2, 100)

		assert.True(t, limiter.Acquire())
		assert.True(t, limiter.Acquire())
		assert.False(t, limiter.Acquire())

		limiter.Release()
		assert.True(t, limiter.Acquire())
		assert.Equal(t, 2, limiter.Current())
	})
}
