// Package metrics defines Prometheus metrics for the web application host,
// covering the in-memory mail log, SMTP delivery, account notifications,
// and HTTP rate limiting.
package metrics
