package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应信封，code 与 HTTP 状态码一致。
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"` // 中文提示信息
	Data interface{} `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, Response{
		Code: status,
		Msg:  msg,
		Data: data,
	})
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "成功", data)
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusOK, msg, data)
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, "创建成功", data)
}

// NoContent 删除成功响应（204）
func NoContent(c *gin.Context) {
	respond(c, http.StatusNoContent, "操作成功", nil)
}

// 失败响应只携带提示，不带数据载荷。

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	respond(c, http.StatusBadRequest, msg, nil)
}

// Unauthorized 未认证（401）
func Unauthorized(c *gin.Context, msg string) {
	respond(c, http.StatusUnauthorized, msg, nil)
}

// Forbidden 无权限（403）
func Forbidden(c *gin.Context, msg string) {
	respond(c, http.StatusForbidden, msg, nil)
}

// NotFound 资源不存在（404）
func NotFound(c *gin.Context, msg string) {
	respond(c, http.StatusNotFound, msg, nil)
}

// Conflict 资源冲突（409）
func Conflict(c *gin.Context, msg string) {
	respond(c, http.StatusConflict, msg, nil)
}

// UnprocessableEntity 资源状态不允许该操作（422）
func UnprocessableEntity(c *gin.Context, msg string) {
	respond(c, http.StatusUnprocessableEntity, msg, nil)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	respond(c, http.StatusInternalServerError, msg, nil)
}
