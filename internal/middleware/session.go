package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// SessionTokenHeader 游客会话令牌的请求头
	SessionTokenHeader = "X-Session-Token"

	// SessionTokenCookie 游客会话令牌的 cookie 名称
	SessionTokenCookie = "session_token"

	// ContextSessionToken 存储在上下文中的会话令牌键
	ContextSessionToken = "sessionToken"
)

// RequireSession 要求携带游客会话令牌
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractSessionToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "session token required",
			})
			c.Abort()
			return
		}

		c.Set(ContextSessionToken, token)
		c.Next()
	}
}

// OptionalSession 可选的游客会话令牌
func OptionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractSessionToken(c); token != "" {
			c.Set(ContextSessionToken, token)
		}
		c.Next()
	}
}

// ExtractSessionToken 从请求中提取游客会话令牌
func ExtractSessionToken(c *gin.Context) string {
	// 1. 从自定义请求头提取
	if token := c.GetHeader(SessionTokenHeader); token != "" {
		return token
	}

	// 2. 从 cookie 提取
	token, err := c.Cookie(SessionTokenCookie)
	if err == nil && token != "" {
		return token
	}

	return ""
}
