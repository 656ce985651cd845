package smtp

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/monitoring"
	"github.com/98ZAFAR/dis-mail-backend/internal/security"
	"github.com/98ZAFAR/dis-mail-backend/internal/service"
)

// maxMessageSize 单封邮件大小上限
const maxMessageSize = 10 << 20 // 10MB

// deliverTimeout 单次投递的存储超时
const deliverTimeout = 10 * time.Second

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 服务器：收件人必须是本系统内处于
// 激活且未过期状态的邮箱，其余地址一律返回 550 拒绝，
// 因此不会成为垃圾邮件中继。收件人校验走缓存路径，
// 缓存故障时降级为直接查库。
type Backend struct {
	registry *service.MailboxRegistry
	mails    *service.MailService
	limiter  *ConnectionLimiter
	filter   *security.MailFilter
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(registry *service.MailboxRegistry, mails *service.MailService, limiter *ConnectionLimiter, metrics *monitoring.Metrics, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		registry: registry,
		mails:    mails,
		limiter:  limiter,
		filter:   security.NewMailFilter(),
		metrics:  metrics,
		log:      log,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		b.recordRejection("rate_limited")
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

func (b *Backend) recordRejection(reason string) {
	if b.metrics != nil {
		b.metrics.RecordMailRejected(reason)
	}
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []recipient
}

type recipient struct {
	address   string
	mailboxID string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 只接受发送到本系统活跃邮箱的邮件：不存在、已停用或
// 已过期的收件人都在这里被拒绝，邮件体根本不会被接收。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	if !strings.Contains(addr, "@") {
		s.backend.recordRejection("invalid_address")
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	projection, err := s.backend.registry.ValidateRecipient(ctx, addr)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMailboxNotFound):
			s.backend.recordRejection("unknown_mailbox")
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
				Message:      "recipient mailbox not found",
			}
		case errors.Is(err, domain.ErrMailboxInactive):
			s.backend.recordRejection("inactive_mailbox")
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 2, 1},
				Message:      "recipient mailbox disabled or expired",
			}
		default:
			s.backend.log.Error("recipient validation failed",
				zap.String("address", addr),
				zap.Error(err),
			)
			return &gosmtp.SMTPError{
				Code:         451,
				EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
				Message:      "temporary failure, try again later",
			}
		}
	}

	s.recipients = append(s.recipients, recipient{
		address:   addr,
		mailboxID: projection.ID,
	})
	return nil
}

// Data 处理邮件内容。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, maxMessageSize))
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(rawBytes)
	if err != nil {
		s.backend.recordRejection("parse_failed")
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "message content rejected",
		}
	}

	if ok, reason := s.backend.filter.CheckBody(parsed.Body()); !ok {
		s.backend.recordRejection(reason)
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "message content rejected",
		}
	}
	for _, att := range parsed.Attachments {
		if ok, reason := s.backend.filter.CheckAttachment(att.Filename); !ok {
			s.backend.recordRejection(reason)
			return &gosmtp.SMTPError{
				Code:         554,
				EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
				Message:      "attachment type rejected",
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	for _, rcpt := range s.recipients {
		input := service.DeliverMailInput{
			MailboxID: rcpt.mailboxID,
			From:      s.fromAddress,
			To:        rcpt.address,
			Subject:   parsed.Subject,
			BodyText:  parsed.Body(),
			Size:      int64(len(rawBytes)),
		}
		for _, att := range parsed.Attachments {
			input.Attachments = append(input.Attachments, service.AttachmentInput{
				Filename:    att.Filename,
				ContentType: att.ContentType,
				Size:        att.Size,
			})
		}

		if _, err := s.backend.mails.Deliver(ctx, input); err != nil {
			s.backend.log.Error("mail delivery failed",
				zap.String("mailbox_id", rcpt.mailboxID),
				zap.Error(err),
			)
			return &gosmtp.SMTPError{
				Code:         451,
				EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
				Message:      "temporary failure, try again later",
			}
		}
	}

	return nil
}

// AuthPlain 处理 PLAIN 认证（此处允许匿名）。
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
