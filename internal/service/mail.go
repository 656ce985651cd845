package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/monitoring"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
)

// MailNotifier 新邮件到达时的推送接口，由 WebSocket Hub 实现。
type MailNotifier interface {
	NotifyNewMail(mailboxID string, mail *domain.Mail)
}

// MailService 处理邮件的落库与查询。
type MailService struct {
	mails    storage.MailRepository
	log      *zap.Logger
	metrics  *monitoring.Metrics
	notifier MailNotifier
}

// NewMailService 创建邮件服务。metrics 可以为 nil。
func NewMailService(mails storage.MailRepository, log *zap.Logger, metrics *monitoring.Metrics) *MailService {
	return &MailService{
		mails:   mails,
		log:     log,
		metrics: metrics,
	}
}

// SetNotifier 设置新邮件推送接口（避免循环依赖）
func (s *MailService) SetNotifier(notifier MailNotifier) {
	s.notifier = notifier
}

// DeliverMailInput 定义一封待投递邮件。
type DeliverMailInput struct {
	MailboxID   string
	From        string
	To          string
	Subject     string
	BodyText    string
	Size        int64
	Attachments []AttachmentInput
}

// AttachmentInput 附件元数据。附件内容由外部存储处理，这里只落元数据。
type AttachmentInput struct {
	Filename    string
	ContentType string
	Size        int64
}

// Deliver 把一封邮件写入收件邮箱。
func (s *MailService) Deliver(ctx context.Context, input DeliverMailInput) (*domain.Mail, error) {
	now := time.Now().UTC()

	mail := &domain.Mail{
		ID:         uuid.NewString(),
		MailboxID:  input.MailboxID,
		From:       input.From,
		To:         input.To,
		Subject:    input.Subject,
		BodyText:   input.BodyText,
		Size:       input.Size,
		ReceivedAt: now,
		CreatedAt:  now,
	}

	attachments := make([]domain.Attachment, 0, len(input.Attachments))
	for _, att := range input.Attachments {
		attachments = append(attachments, domain.Attachment{
			ID:          uuid.NewString(),
			MailID:      mail.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}

	if err := s.mails.SaveMail(ctx, mail, attachments); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordMailReceived()
	}
	if s.notifier != nil {
		s.notifier.NotifyNewMail(mail.MailboxID, mail)
	}

	s.log.Info("mail delivered",
		zap.String("mailId", mail.ID),
		zap.String("mailboxId", mail.MailboxID),
		zap.Int("attachments", len(attachments)),
	)
	return mail, nil
}

// List 返回邮箱下的全部邮件，新邮件在前。
func (s *MailService) List(ctx context.Context, mailboxID string) ([]domain.Mail, error) {
	return s.mails.ListMails(ctx, mailboxID)
}

// Count 统计邮箱邮件数量。
func (s *MailService) Count(ctx context.Context, mailboxID string) (int64, error) {
	return s.mails.CountMails(ctx, mailboxID)
}
