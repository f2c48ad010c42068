package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServiceMetrics instruments the domain operations: appends, claims,
// webhook deliveries, throttling, quota and background jobs.
type ServiceMetrics struct {
	appendsTotal *prometheus.CounterVec

	claimsAcquired prometheus.Counter
	claimConflicts prometheus.Counter
	claimsExpired  prometheus.Counter

	webhookAttempts  prometheus.Counter
	webhookDelivered prometheus.Counter
	webhookFailed    prometheus.Counter

	rateLimitedTotal     *prometheus.CounterVec
	quotaRejectionsTotal prometheus.Counter

	auditFlushes prometheus.Counter
	auditDropped prometheus.Counter
	exportJobs   *prometheus.CounterVec
}

// NewServiceMetrics creates the domain metric family.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewServiceMetrics() *ServiceMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &ServiceMetrics{
		appendsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "marklog_appends_total",
				Help: "Total appends accepted, by event type",
			},
			[]string{"type"},
		),
		claimsAcquired: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "marklog_claims_acquired_total",
				Help: "Claims successfully acquired",
			},
		),
		claimConflicts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "marklog_claim_conflicts_total",
				Help: "Claim attempts rejected because the task was already held",
			},
		),
		claimsExpired: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "marklog_claims_expired_total",
				Help: "Claim leases that lapsed without renewal",
			},
		),
		webhookAttempts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "marklog_webhook_attempts_total",
				Help: "Webhook delivery attempts",
			},
		),
		webhookDelivered: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "marklog_webhook_delivered_total",
				Help: "Webhook deliveries that succeeded",
			},
		),
		webhookFailed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "marklog_webhook_failed_total",
				Help: "Webhook deliveries that exhausted their attempts",
			},
		),
		rateLimitedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "marklog_rate_limited_total",
				Help: "Requests rejected by a rate rule",
			},
			[]string{"rule"},
		),
		quotaRejectionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "marklog_quota_rejections_total",
				Help: "Writes rejected by the workspace storage quota",
			},
		),
		auditFlushes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "marklog_audit_flush_batches_total",
				Help: "Audit batches flushed to the store",
			},
		),
		auditDropped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "marklog_audit_dropped_total",
				Help: "Audit entries dropped because the buffer was full",
			},
		),
		exportJobs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "marklog_export_jobs_total",
				Help: "Export jobs finished, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *ServiceMetrics) AppendAccepted(eventType string) {
	if m != nil {
		m.appendsTotal.WithLabelValues(eventType).Inc()
	}
}

func (m *ServiceMetrics) ClaimAcquired() {
	if m != nil {
		m.claimsAcquired.Inc()
	}
}

func (m *ServiceMetrics) ClaimConflict() {
	if m != nil {
		m.claimConflicts.Inc()
	}
}

func (m *ServiceMetrics) ClaimExpired() {
	if m != nil {
		m.claimsExpired.Inc()
	}
}

func (m *ServiceMetrics) WebhookAttempt() {
	if m != nil {
		m.webhookAttempts.Inc()
	}
}

func (m *ServiceMetrics) WebhookDelivered() {
	if m != nil {
		m.webhookDelivered.Inc()
	}
}

func (m *ServiceMetrics) WebhookFailed() {
	if m != nil {
		m.webhookFailed.Inc()
	}
}

func (m *ServiceMetrics) RateLimited(rule string) {
	if m != nil {
		m.rateLimitedTotal.WithLabelValues(rule).Inc()
	}
}

func (m *ServiceMetrics) QuotaRejected() {
	if m != nil {
		m.quotaRejectionsTotal.Inc()
	}
}

func (m *ServiceMetrics) AuditFlushed() {
	if m != nil {
		m.auditFlushes.Inc()
	}
}

func (m *ServiceMetrics) AuditDropped() {
	if m != nil {
		m.auditDropped.Inc()
	}
}

func (m *ServiceMetrics) ExportFinished(outcome string) {
	if m != nil {
		m.exportJobs.WithLabelValues(outcome).Inc()
	}
}
