package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// In-memory mail log metrics
	MailLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_mail_logged_total",
		Help: "Total number of distinct emails recorded by the in-memory mail log, by hour of day",
	}, []string{"hour"})
	MailDuplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webapp_mail_duplicates_total",
		Help: "Total number of sends collapsed into an existing record of the same hour",
	})
	MailLogRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "webapp_mail_log_records",
		Help: "Number of records currently held by the in-memory mail log",
	})

	// SMTP delivery metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_mail_send_success_total",
		Help: "Total number of successful SMTP deliveries",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_mail_send_failure_total",
		Help: "Total number of failed SMTP delivery attempts",
	}, []string{"host"})
	MailQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_mail_queued_total",
		Help: "Total number of emails accepted by the delivery queue",
	}, []string{"host"})
	MailQueueDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_mail_queue_dropped_total",
		Help: "Total number of emails rejected by the delivery queue",
	}, []string{"host"})
	MailRetryScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_mail_retry_scheduled_total",
		Help: "Total number of delivery retries scheduled by the queue",
	}, []string{"host"})
	MailFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_mail_failed_total",
		Help: "Total number of emails given up after all retries",
	}, []string{"host"})

	// Account workflow metrics
	AccountNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_account_notifications_total",
		Help: "Total number of account notification emails handed to the sender, by kind",
	}, []string{"kind"})

	// Audit metrics
	AuditEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_audit_events_total",
		Help: "Total number of audit events accepted for delivery, by type",
	}, []string{"type"})
	AuditEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webapp_audit_events_dropped_total",
		Help: "Total number of audit events dropped because the queue was full or closed",
	})
	AuditSinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_audit_sink_errors_total",
		Help: "Total number of audit sink write failures",
	}, []string{"sink", "error_type"})
	AuditSinkLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webapp_audit_sink_write_duration_seconds",
		Help:    "Latency of audit sink writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})

	// HTTP metrics
	RateLimitRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_ratelimit_rejected_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"path"})
)

func init() {
	prometheus.MustRegister(MailLogged)
	prometheus.MustRegister(MailDuplicates)
	prometheus.MustRegister(MailLogRecords)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailQueued)
	prometheus.MustRegister(MailQueueDropped)
	prometheus.MustRegister(MailRetryScheduled)
	prometheus.MustRegister(MailFailed)
	prometheus.MustRegister(AccountNotifications)
	prometheus.MustRegister(AuditEvents)
	prometheus.MustRegister(AuditEventsDropped)
	prometheus.MustRegister(AuditSinkErrors)
	prometheus.MustRegister(AuditSinkLatency)
	prometheus.MustRegister(RateLimitRejected)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
