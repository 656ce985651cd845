package security

import (
	"path/filepath"
	"regexp"
	"strings"
)

// MailFilter 来信内容过滤器。
//
// 附件只有元数据入库，因此附件检查针对文件名；
// 正文检查针对解码后的文本。
type MailFilter struct {
	maliciousPatterns   []*regexp.Regexp
	spamKeywords        []string
	dangerousExtensions map[string]bool
}

// NewMailFilter 创建来信过滤器
func NewMailFilter() *MailFilter {
	return &MailFilter{
		maliciousPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)onload\s*=`),
			regexp.MustCompile(`(?i)onerror\s*=`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
		},
		spamKeywords: []string{
			"viagra", "casino", "lottery", "winner", "congratulations",
			"free money", "click here", "limited time", "act now",
			"guaranteed", "no risk", "earn money", "work from home",
		},
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".vbs": true,
			".jar": true,
			".php": true,
		},
	}
}

// CheckBody 检查邮件正文，返回是否放行及拒绝原因。
func (f *MailFilter) CheckBody(body string) (bool, string) {
	for _, pattern := range f.maliciousPatterns {
		if pattern.MatchString(body) {
			return false, "malicious_content"
		}
	}

	bodyLower := strings.ToLower(body)
	spamCount := 0
	for _, keyword := range f.spamKeywords {
		if strings.Contains(bodyLower, keyword) {
			spamCount++
		}
	}
	// 单个关键词常见于正常邮件，多个同时出现才判垃圾
	if spamCount >= 3 {
		return false, "spam_content"
	}

	return true, ""
}

// CheckAttachment 检查附件文件名，返回是否放行及拒绝原因。
func (f *MailFilter) CheckAttachment(filename string) (bool, string) {
	ext := strings.ToLower(filepath.Ext(filename))
	if f.dangerousExtensions[ext] {
		return false, "dangerous_attachment"
	}
	return true, ""
}
