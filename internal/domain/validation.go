package domain

import (
	"regexp"
	"strings"
)

// aliasPattern 别名规则：3-20 位字母数字、连字符或下划线（大小写不敏感）。
var aliasPattern = regexp.MustCompile(`(?i)^[a-z0-9_-]{3,20}$`)

// ValidateAlias 校验邮箱别名格式。
func ValidateAlias(alias string) error {
	if !aliasPattern.MatchString(alias) {
		return ErrAliasInvalid
	}
	return nil
}

// NormalizeEmail 将邮箱地址规范化为小写并去除首尾空白。
func NormalizeEmail(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeAlias 将别名规范化为小写并去除首尾空白。
func NormalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}
