package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/98ZAFAR/dis-mail-backend/internal/cache"
	"github.com/98ZAFAR/dis-mail-backend/internal/config"
	"github.com/98ZAFAR/dis-mail-backend/internal/domain"
	"github.com/98ZAFAR/dis-mail-backend/internal/monitoring"
	"github.com/98ZAFAR/dis-mail-backend/internal/storage"
)

// ErrSweepInProgress 已有一次清扫在运行，本次触发被拒绝。
var ErrSweepInProgress = errors.New("sweep already in progress")

// SweepSummary 单次清扫的结果汇总。
type SweepSummary struct {
	Reaped            int           `json:"reaped"`            // 删除的过期邮箱数
	ReapedMails       int64         `json:"reapedMails"`       // 随邮箱删除的邮件数
	ReapedAttachments int64         `json:"reapedAttachments"` // 随邮箱删除的附件数
	Deactivated       int64         `json:"deactivated"`       // 预停用的即将过期邮箱数
	Errors            int           `json:"errors"`            // 跳过的单邮箱错误数
	Duration          time.Duration `json:"duration"`
}

// ExpirySweeper 周期清扫过期邮箱。
//
// 每轮分两个阶段：先删除已过期的邮箱及其全部从属数据，
// 再把窗口内即将过期的邮箱预先停用，停止接收新邮件。
// 同一时间只允许一次清扫运行，定时触发与手动触发共用 RunOnce。
type ExpirySweeper struct {
	repo    storage.MailboxRepository
	cache   *cache.Layer
	cfg     *config.Config
	log     *zap.Logger
	metrics *monitoring.Metrics

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewExpirySweeper 创建过期清扫器。metrics 可以为 nil。
func NewExpirySweeper(repo storage.MailboxRepository, cacheLayer *cache.Layer, cfg *config.Config, log *zap.Logger, metrics *monitoring.Metrics) *ExpirySweeper {
	return &ExpirySweeper{
		repo:    repo,
		cache:   cacheLayer,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start 启动清扫循环。循环在 ctx 取消或 Stop 被调用时退出。
func (s *ExpirySweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.cfg.Sweeper.Interval)
		defer ticker.Stop()

		s.log.Info("expiry sweeper started", zap.Duration("interval", s.cfg.Sweeper.Interval))

		for {
			select {
			case <-ctx.Done():
				s.log.Info("expiry sweeper stopped", zap.String("reason", "context canceled"))
				return
			case <-s.stop:
				s.log.Info("expiry sweeper stopped", zap.String("reason", "stop requested"))
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
					s.log.Error("sweep run failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop 停止清扫循环并等待其退出。未启动时调用是安全的。
func (s *ExpirySweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.log.Warn("expiry sweeper did not stop in time")
	}
}

// RunOnce 执行一轮清扫，定时器和运维接口共用此入口。
// 已有清扫在运行时返回 ErrSweepInProgress。
// 每轮都是幂等的：重复运行同一时刻的数据不会产生额外效果。
func (s *ExpirySweeper) RunOnce(ctx context.Context) (*SweepSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	now := start.UTC()
	summary := &SweepSummary{}

	s.reapExpired(ctx, now, summary)
	s.deactivateExpiring(ctx, now, summary)

	summary.Duration = time.Since(start)

	if s.metrics != nil {
		s.metrics.RecordSweep(summary.Duration, int64(summary.Reaped), summary.Deactivated, summary.Errors)
	}

	if summary.Reaped > 0 || summary.Deactivated > 0 || summary.Errors > 0 {
		s.log.Info("sweep completed",
			zap.Int("reaped", summary.Reaped),
			zap.Int64("reapedMails", summary.ReapedMails),
			zap.Int64("reapedAttachments", summary.ReapedAttachments),
			zap.Int64("deactivated", summary.Deactivated),
			zap.Int("errors", summary.Errors),
			zap.Duration("duration", summary.Duration),
		)
	}
	return summary, nil
}

// reapExpired 删除已过期的邮箱。单个邮箱失败只记录日志，继续处理其余邮箱。
func (s *ExpirySweeper) reapExpired(ctx context.Context, now time.Time, summary *SweepSummary) {
	expired, err := s.repo.ListExpiredMailboxes(ctx, now)
	if err != nil {
		s.log.Error("list expired mailboxes failed", zap.Error(err))
		summary.Errors++
		return
	}

	for i := range expired {
		mailbox := &expired[i]

		counts, err := s.repo.CountMailboxDependents(ctx, mailbox.ID)
		if err != nil {
			s.log.Warn("count mailbox dependents failed",
				zap.String("mailboxId", mailbox.ID), zap.Error(err))
			summary.Errors++
			continue
		}

		if err := s.repo.DeleteMailbox(ctx, mailbox.ID); err != nil {
			s.log.Warn("reap mailbox failed",
				zap.String("mailboxId", mailbox.ID), zap.Error(err))
			summary.Errors++
			continue
		}

		s.cache.InvalidateMailbox(ctx, mailbox.EmailAddress)
		s.cache.InvalidateAlias(ctx, mailbox.Alias)
		if owner := mailbox.Owner(); owner.Kind() == domain.OwnerSession {
			s.cache.InvalidateSession(ctx, owner.SessionToken())
		}

		summary.Reaped++
		summary.ReapedMails += counts.Mails
		summary.ReapedAttachments += counts.Attachments

		s.log.Debug("mailbox reaped",
			zap.String("mailboxId", mailbox.ID),
			zap.String("address", mailbox.EmailAddress),
			zap.Int64("mails", counts.Mails),
			zap.Int64("attachments", counts.Attachments),
		)
	}
}

// deactivateExpiring 预停用窗口内即将过期且仍活跃的邮箱。
// 批量更新只命中 is_active = true 的记录，重复运行不会重复计数。
func (s *ExpirySweeper) deactivateExpiring(ctx context.Context, now time.Time, summary *SweepSummary) {
	until := now.Add(s.cfg.Sweeper.DeactivateWindow)

	affected, err := s.repo.DeactivateExpiringMailboxes(ctx, now, until)
	if err != nil {
		s.log.Error("deactivate expiring mailboxes failed", zap.Error(err))
		summary.Errors++
		return
	}
	summary.Deactivated = affected
}
