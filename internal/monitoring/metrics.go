package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮箱生命周期指标
	MailboxesCreated  *prometheus.CounterVec
	MailboxesDeleted  prometheus.Counter
	MailboxesMigrated prometheus.Counter

	// 缓存指标
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// 清扫指标
	SweepRuns            prometheus.Counter
	SweepDuration        prometheus.Histogram
	MailboxesReaped      prometheus.Counter
	MailboxesDeactivated prometheus.Counter
	SweepErrors          prometheus.Counter

	// 邮件指标
	MailsReceived prometheus.Counter
	MailsRejected *prometheus.CounterVec

	// 用户指标
	UsersRegistered prometheus.Counter

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dismail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dismail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MailboxesCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dismail_mailboxes_created_total",
				Help: "Total number of mailboxes created",
			},
			[]string{"owner_kind"},
		),

		MailboxesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dismail_mailboxes_deleted_total",
			Help: "Total number of mailboxes deleted",
		}),

		MailboxesMigrated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dismail_mailboxes_migrated_total",
			Help: "Total number of guest mailboxes migrated to user accounts",
		}),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dismail_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"namespace"},
		),

		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dismail_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"namespace"},
		),

		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dismail_sweep_runs_total",
			Help: "Total number of expiry sweep runs",
		}),

		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dismail_sweep_duration_seconds",
			Help:    "Expiry sweep run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		MailboxesReaped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dismail_mailboxes_reaped_total",
			Help: "Total number of expired mailboxes reaped by the sweeper",
		}),

		MailboxesDeactivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dismail_mailboxes_deactivated_total",
			Help: "Total number of expiring mailboxes deactivated ahead of expiry",
		}),

		SweepErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dismail_sweep_errors_total",
			Help: "Total number of per-mailbox errors during sweep runs",
		}),

		MailsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dismail_mails_received_total",
			Help: "Total number of mails accepted for delivery",
		}),

		MailsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dismail_mails_rejected_total",
				Help: "Total number of mails rejected at the SMTP boundary",
			},
			[]string{"reason"},
		),

		UsersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dismail_users_registered_total",
			Help: "Total number of registered users",
		}),

		PanicsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dismail_panics_total",
			Help: "Total number of recovered panics",
		}),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordMailboxCreated 记录邮箱创建
func (m *Metrics) RecordMailboxCreated(ownerKind string) {
	m.MailboxesCreated.WithLabelValues(ownerKind).Inc()
}

// RecordMailboxDeleted 记录邮箱删除
func (m *Metrics) RecordMailboxDeleted() {
	m.MailboxesDeleted.Inc()
}

// RecordMailboxMigrated 记录属主迁移
func (m *Metrics) RecordMailboxMigrated() {
	m.MailboxesMigrated.Inc()
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(namespace string) {
	m.CacheHits.WithLabelValues(namespace).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(namespace string) {
	m.CacheMisses.WithLabelValues(namespace).Inc()
}

// RecordSweep 记录一次清扫
func (m *Metrics) RecordSweep(duration time.Duration, reaped, deactivated int64, errs int) {
	m.SweepRuns.Inc()
	m.SweepDuration.Observe(duration.Seconds())
	m.MailboxesReaped.Add(float64(reaped))
	m.MailboxesDeactivated.Add(float64(deactivated))
	m.SweepErrors.Add(float64(errs))
}

// RecordMailReceived 记录邮件接收
func (m *Metrics) RecordMailReceived() {
	m.MailsReceived.Inc()
}

// RecordMailRejected 记录邮件被拒
func (m *Metrics) RecordMailRejected(reason string) {
	m.MailsRejected.WithLabelValues(reason).Inc()
}

// RecordUserRegistered 记录用户注册
func (m *Metrics) RecordUserRegistered() {
	m.UsersRegistered.Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// Handler 返回 Prometheus 指标处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
