package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/auth"
	"github.com/98ZAFAR/dis-mail-backend/internal/auth/jwt"
	"github.com/98ZAFAR/dis-mail-backend/internal/middleware"
)

// AuthHandler 用户认证处理器
type AuthHandler struct {
	service    *auth.Service
	jwtManager *jwt.Manager
	log        *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(service *auth.Service, jwtManager *jwt.Manager, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service:    service,
		jwtManager: jwtManager,
		log:        log,
	}
}

// Register 注册新用户
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		FullName string `json:"fullName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.service.Register(c.Request.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	Created(c, user)
}

// Login 用户登录，可选地迁移游客会话持有的邮箱
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email          string `json:"email" binding:"required"`
		Password       string `json:"password" binding:"required"`
		MigrateMailbox bool   `json:"migrateMailbox"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.service.Login(c.Request.Context(), auth.LoginInput{
		Email:             req.Email,
		Password:          req.Password,
		GuestSessionToken: middleware.ExtractSessionToken(c),
		MigrateMailbox:    req.MigrateMailbox,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	tokens, err := h.jwtManager.GenerateTokenPair(result.User.ID, result.User.Email)
	if err != nil {
		h.log.Error("generate token pair failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	// 邮箱已转移，游客会话令牌随之作废
	if result.MigratedMailbox != nil {
		c.SetCookie(middleware.SessionTokenCookie, "", -1, "/", "", false, true)
	}

	Success(c, gin.H{
		"user":            result.User,
		"tokens":          tokens,
		"migratedMailbox": result.MigratedMailbox,
	})
}

// Refresh 使用刷新令牌换取新的访问令牌
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, gin.H{
		"accessToken": accessToken,
	})
}

// Me 返回当前登录用户信息
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.service.GetUserByID(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, user)
}
