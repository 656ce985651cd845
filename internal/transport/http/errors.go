package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/98ZAFAR/dis-mail-backend/internal/auth"
	"github.com/98ZAFAR/dis-mail-backend/internal/auth/jwt"
	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 邮箱错误
	domain.ErrAliasInvalid:      "邮箱别名格式无效",
	domain.ErrAliasTaken:        "邮箱别名已被占用",
	domain.ErrSessionHasMailbox: "当前会话已持有邮箱",
	domain.ErrMailboxNotFound:   "邮箱不存在",
	domain.ErrMailboxInactive:   "邮箱已停用或已过期",
	domain.ErrSessionNotFound:   "会话不存在或未持有邮箱",
	domain.ErrQuotaExceeded:     "活跃邮箱数量已达上限",

	// 认证错误
	auth.ErrInvalidEmail:       "邮箱格式无效",
	auth.ErrEmailExists:        "该邮箱已被注册",
	auth.ErrUserNotFound:       "用户不存在",
	auth.ErrInvalidCredentials: "用户名或密码错误",
	auth.ErrUserInactive:       "账户已被禁用",
	jwt.ErrInvalidToken:        "无效的访问令牌",
	jwt.ErrExpiredToken:        "登录已过期，请重新登录",

	// 运维错误
	service.ErrSweepInProgress: "清扫任务正在运行中",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// RespondError 根据业务错误选择 HTTP 状态码并返回中文消息
func RespondError(c *gin.Context, err error) {
	msg := GetErrorMessage(err)

	switch {
	case errors.Is(err, domain.ErrAliasInvalid),
		errors.Is(err, auth.ErrInvalidEmail):
		BadRequest(c, msg)
	case errors.Is(err, domain.ErrAliasTaken),
		errors.Is(err, domain.ErrSessionHasMailbox),
		errors.Is(err, auth.ErrEmailExists),
		errors.Is(err, service.ErrSweepInProgress):
		Conflict(c, msg)
	case errors.Is(err, domain.ErrMailboxNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		NotFound(c, msg)
	case errors.Is(err, domain.ErrQuotaExceeded),
		errors.Is(err, auth.ErrUserInactive):
		Forbidden(c, msg)
	case errors.Is(err, domain.ErrMailboxInactive):
		UnprocessableEntity(c, msg)
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, jwt.ErrInvalidToken),
		errors.Is(err, jwt.ErrExpiredToken):
		Unauthorized(c, msg)
	default:
		InternalError(c, MsgInternalError)
	}
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidJSON      = "JSON格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"

	// 认证相关
	MsgAuthRequired     = "需要登录认证"
	MsgSessionRequired  = "需要携带会话令牌"
	MsgPermissionDenied = "权限不足"

	// 邮箱相关
	MsgMailboxCreateFailed = "创建邮箱失败"
	MsgMailboxNotFound     = "邮箱不存在"
	MsgMailboxDeleteFailed = "删除邮箱失败"
	MsgMailboxExtendFailed = "延长邮箱有效期失败"

	// 邮件相关
	MsgMailNotFound   = "邮件不存在"
	MsgMailListFailed = "获取邮件列表失败"

	// 服务器相关
	MsgInternalError = "服务器内部错误"
)
