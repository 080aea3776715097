package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the backup service
type Metrics struct {
	// Webhook metrics
	WebhookRequests *prometheus.CounterVec
	EventsTotal     *prometheus.CounterVec
	EventsInFlight  prometheus.Gauge

	// Upload metrics
	UploadsTotal    *prometheus.CounterVec
	UploadAttempts  *prometheus.CounterVec
	UploadBytes     prometheus.Counter
	UploadDuration  prometheus.Histogram
	FetchBytes      prometheus.Histogram
	StagingCleanups prometheus.Counter

	// Backup stats
	BackupsToday   prometheus.Gauge
	LastBackupTime prometheus.Gauge

	// Dependencies
	StorageReachable  prometheus.Gauge
	NotificationsSent *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

// NewMetrics registers all collectors with the default registry
func NewMetrics() *Metrics {
	return &Metrics{
		WebhookRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "line_backup_webhook_requests_total",
				Help: "Webhook requests by response status",
			},
			[]string{"status"},
		),
		EventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "line_backup_events_total",
				Help: "Processed webhook events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		EventsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "line_backup_events_in_flight",
			Help: "Events currently being processed",
		}),

		UploadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "line_backup_uploads_total",
				Help: "Upload jobs by type bucket and result",
			},
			[]string{"bucket", "result"},
		),
		UploadAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "line_backup_upload_attempts_total",
				Help: "Individual upload attempts by result",
			},
			[]string{"result"},
		),
		UploadBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "line_backup_uploaded_bytes_total",
			Help: "Bytes written to remote storage",
		}),
		UploadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "line_backup_upload_duration_seconds",
			Help:    "Duration of upload jobs including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		FetchBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "line_backup_fetched_bytes",
			Help:    "Size of fetched attachments",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
		}),
		StagingCleanups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "line_backup_staging_files_removed_total",
			Help: "Stale staging files removed at startup",
		}),

		BackupsToday: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "line_backup_backups_today",
			Help: "Successful backups since local midnight",
		}),
		LastBackupTime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "line_backup_last_backup_timestamp_seconds",
			Help: "Unix time of the last successful backup",
		}),

		StorageReachable: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "line_backup_storage_reachable",
			Help: "1 when the last storage probe succeeded",
		}),
		NotificationsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "line_backup_notifications_total",
				Help: "Acknowledgements sent to conversations by type and result",
			},
			[]string{"type", "result"},
		),
		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "line_backup_events_published_total",
				Help: "Backup events published to Kafka by result",
			},
			[]string{"result"},
		),
	}
}

// RecordWebhook records a webhook response status
func (m *Metrics) RecordWebhook(status string) {
	m.WebhookRequests.WithLabelValues(status).Inc()
}

// RecordEvent records the outcome of one event
func (m *Metrics) RecordEvent(kind, outcome string) {
	if kind == "" {
		kind = "unknown"
	}
	m.EventsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordUpload records a finished upload job
func (m *Metrics) RecordUpload(bucket, result string, bytes int64, seconds float64) {
	m.UploadsTotal.WithLabelValues(bucket, result).Inc()
	m.UploadDuration.Observe(seconds)
	if bytes > 0 {
		m.UploadBytes.Add(float64(bytes))
	}
}

// RecordAttempt records a single upload attempt
func (m *Metrics) RecordAttempt(result string) {
	m.UploadAttempts.WithLabelValues(result).Inc()
}

// RecordFetch records the size of a fetched attachment
func (m *Metrics) RecordFetch(bytes int64) {
	m.FetchBytes.Observe(float64(bytes))
}

// SetStorageReachable updates the storage reachability gauge
func (m *Metrics) SetStorageReachable(ok bool) {
	if ok {
		m.StorageReachable.Set(1)
		return
	}
	m.StorageReachable.Set(0)
}

// RecordNotification records an acknowledgement attempt
func (m *Metrics) RecordNotification(kind string, err error) {
	m.NotificationsSent.WithLabelValues(kind, resultLabel(err)).Inc()
}

// RecordPublish records a Kafka publish attempt
func (m *Metrics) RecordPublish(err error) {
	m.EventsPublished.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
