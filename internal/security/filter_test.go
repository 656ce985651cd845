package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMailFilter(t *testing.T) {
	filter := NewMailFilter()

	t.Run("正常正文放行", func(t *testing.T) {
		ok, _ := filter.CheckBody("please confirm your account by entering the code 123456")
		assert.True(t, ok)
	})

	t.Run("恶意脚本拒收", func(t *testing.T) {
		ok, reason := filter.CheckBody(`hello <script>alert(1)</script>`)
		assert.False(t, ok)
		assert.Equal(t, "malicious_content", reason)
	})

	t.Run("多个垃圾关键词拒收", func(t *testing.T) {
		ok, reason := filter.CheckBody("congratulations winner, click here for free money")
		assert.False(t, ok)
		assert.Equal(t, "spam_content", reason)
	})

	t.Run("单个关键词放行", func(t *testing.T) {
		ok, _ := filter.CheckBody("your lottery ticket subscription receipt")
		assert.True(t, ok)
	})

	t.Run("危险附件扩展名拒收", func(t *testing.T) {
		ok, reason := filter.CheckAttachment("invoice.exe")
		assert.False(t, ok)
		assert.Equal(t, "dangerous_attachment", reason)

		ok, _ = filter.CheckAttachment("report.pdf")
		assert.True(t, ok)
	})
}
