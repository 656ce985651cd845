package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/service"
)

// MailHandler 邮件查询处理器
type MailHandler struct {
	registry *service.MailboxRegistry
	mails    *service.MailService
	log      *zap.Logger
}

// NewMailHandler 创建邮件处理器
func NewMailHandler(registry *service.MailboxRegistry, mails *service.MailService, log *zap.Logger) *MailHandler {
	return &MailHandler{
		registry: registry,
		mails:    mails,
		log:      log,
	}
}

// List 列出邮箱内的邮件（需为归属方）
// GET /api/v1/mailboxes/:id/mails
func (h *MailHandler) List(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	// 归属校验复用注册表的所有权解析
	mailbox, err := h.registry.GetOwnedMailbox(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		RespondError(c, err)
		return
	}

	mails, err := h.mails.List(c.Request.Context(), mailbox.ID)
	if err != nil {
		h.log.Error("list mails failed",
			zap.String("mailbox_id", mailbox.ID),
			zap.Error(err),
		)
		InternalError(c, MsgMailListFailed)
		return
	}

	Success(c, gin.H{
		"mails": mails,
		"total": len(mails),
	})
}
