package smtp

import (
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/config"
)

// Server 封装 go-smtp 服务器的生命周期。
type Server struct {
	server *gosmtp.Server
	log    *zap.Logger
}

// NewServer 创建 SMTP 服务器。
func NewServer(cfg config.SMTPConfig, backend *Backend, log *zap.Logger) *Server {
	srv := gosmtp.NewServer(backend)
	srv.Addr = cfg.BindAddr
	srv.Domain = cfg.Domain
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.MaxMessageBytes = maxMessageSize
	srv.MaxRecipients = 10
	srv.AllowInsecureAuth = true

	return &Server{
		server: srv,
		log:    log,
	}
}

// ListenAndServe 启动监听，阻塞直到 Close 被调用。
func (s *Server) ListenAndServe() error {
	s.log.Info("smtp server listening",
		zap.String("addr", s.server.Addr),
		zap.String("domain", s.server.Domain),
	)
	return s.server.ListenAndServe()
}

// Close 关闭服务器。
func (s *Server) Close() error {
	s.log.Info("smtp server shutting down")
	return s.server.Close()
}
