package moneybird

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRecordsSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneybird_records_synced_total",
		Help: "Number of remote records reconciled into the local database.",
	}, []string{"entity_type"})

	metricRecordsSkippedStale = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneybird_records_skipped_stale_total",
		Help: "Number of remote records skipped because the stored version was already up to date.",
	}, []string{"entity_type"})

	metricSyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneybird_sync_errors_total",
		Help: "Number of errors recorded during sync passes.",
	}, []string{"entity_type"})

	metricSyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneybird_sync_runs_total",
		Help: "Number of finished sync runs by outcome.",
	}, []string{"status"})

	metricSyncSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moneybird_sync_skipped_total",
		Help: "Number of sync invocations skipped because another run held the lock.",
	})

	metricWebhookAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneybird_webhook_events_total",
		Help: "Number of webhook events accepted for processing.",
	}, []string{"entity_type", "action"})

	metricWebhookRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneybird_webhook_rejected_total",
		Help: "Number of webhook deliveries rejected during validation.",
	}, []string{"reason"})

	metricPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneybird_pushes_total",
		Help: "Number of local saves pushed to the remote administration.",
	}, []string{"entity_type", "result"})
)
