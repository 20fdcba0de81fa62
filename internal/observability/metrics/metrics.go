// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "call_insight"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionsActive  prometheus.Gauge

	// Ingestion metrics
	ChunksAccepted  prometheus.Counter
	ChunksDuplicate prometheus.Counter
	FilesAccepted   prometheus.Counter
	AudioBytesStored prometheus.Counter

	// Transcription metrics
	TranscriptionAttempts prometheus.Counter
	TranscriptionRetries  prometheus.Counter
	TranscriptionFailures *prometheus.CounterVec
	TranscriptionLatency  *prometheus.HistogramVec
	SegmentsAppended      prometheus.Counter
	SegmentsSuperseded    prometheus.Counter

	// Keyword metrics
	KeywordDetections *prometheus.CounterVec
	RuleCacheReloads  prometheus.Counter

	// Event bus metrics
	BusPublished *prometheus.CounterVec
	BusDropped   *prometheus.CounterVec

	// Kafka mirror metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Connection metrics
	ConnectionsTotal   prometheus.Counter
	ConnectionsActive  prometheus.Gauge
	ConnectionsTimedOut prometheus.Counter
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),
		SessionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of sessions explicitly closed",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions",
		}),

		ChunksAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_accepted_total",
			Help:      "Total number of audio chunks accepted for processing",
		}),
		ChunksDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_duplicate_total",
			Help:      "Total number of duplicate chunk submissions ignored",
		}),
		FilesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_accepted_total",
			Help:      "Total number of audio files accepted for processing",
		}),
		AudioBytesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_stored_total",
			Help:      "Total audio bytes written to the blob store",
		}),

		TranscriptionAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_attempts_total",
			Help:      "Total number of transcription calls made",
		}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_retries_total",
			Help:      "Total number of transcription retries after transient failures",
		}),
		TranscriptionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_failures_total",
			Help:      "Total number of transcription requests that ultimately failed",
		}, []string{"kind"}),
		TranscriptionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Transcription call latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		SegmentsAppended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_appended_total",
			Help:      "Total number of segments appended to sessions",
		}),
		SegmentsSuperseded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_superseded_total",
			Help:      "Total number of provisional segments replaced by final ones",
		}),

		KeywordDetections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyword_detections_total",
			Help:      "Total number of keyword detections emitted",
		}, []string{"keyword"}),
		RuleCacheReloads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_cache_reloads_total",
			Help:      "Total number of keyword rule cache reloads",
		}),

		BusPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_published_total",
			Help:      "Total number of events published to the bus",
		}, []string{"type"}),
		BusDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_dropped_total",
			Help:      "Total number of events dropped for slow subscribers",
		}, []string{"session"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of real-time connections accepted",
		}),
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently connected observers",
		}),
		ConnectionsTimedOut: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_timed_out_total",
			Help:      "Total number of connections closed by heartbeat timeout",
		}),
	}
}

// RecordSessionCreated records a new session.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClosed records a session being closed.
func (m *Metrics) RecordSessionClosed() {
	m.SessionsClosed.Inc()
	m.SessionsActive.Dec()
}

// RecordChunkAccepted records an accepted chunk submission.
func (m *Metrics) RecordChunkAccepted() {
	m.ChunksAccepted.Inc()
}

// RecordChunkDuplicate records a duplicate chunk submission.
func (m *Metrics) RecordChunkDuplicate() {
	m.ChunksDuplicate.Inc()
}

// RecordFileAccepted records an accepted file submission.
func (m *Metrics) RecordFileAccepted() {
	m.FilesAccepted.Inc()
}

// RecordAudioStored records bytes written to the blob store.
func (m *Metrics) RecordAudioStored(bytes int) {
	m.AudioBytesStored.Add(float64(bytes))
}

// RecordTranscription records one transcription call.
func (m *Metrics) RecordTranscription(provider string, latencySeconds float64) {
	m.TranscriptionAttempts.Inc()
	m.TranscriptionLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordTranscriptionRetry records a retry after a transient failure.
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordTranscriptionFailure records a request that ultimately failed.
func (m *Metrics) RecordTranscriptionFailure(kind string) {
	m.TranscriptionFailures.WithLabelValues(kind).Inc()
}

// RecordSegmentsAppended records segments appended to a session.
func (m *Metrics) RecordSegmentsAppended(n, superseded int) {
	m.SegmentsAppended.Add(float64(n))
	m.SegmentsSuperseded.Add(float64(superseded))
}

// RecordDetection records a keyword detection.
func (m *Metrics) RecordDetection(keyword string) {
	m.KeywordDetections.WithLabelValues(keyword).Inc()
}

// RecordRuleCacheReload records a keyword rule cache reload.
func (m *Metrics) RecordRuleCacheReload() {
	m.RuleCacheReloads.Inc()
}

// RecordBusPublish records one event published to the bus.
func (m *Metrics) RecordBusPublish(eventType string) {
	m.BusPublished.WithLabelValues(eventType).Inc()
}

// RecordBusDrop records an event dropped for a slow subscriber.
func (m *Metrics) RecordBusDrop(sessionId string) {
	m.BusDropped.WithLabelValues(sessionId).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordConnectionOpened records a new real-time connection.
func (m *Metrics) RecordConnectionOpened() {
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// RecordConnectionClosed records a connection closing.
func (m *Metrics) RecordConnectionClosed(timedOut bool) {
	m.ConnectionsActive.Dec()
	if timedOut {
		m.ConnectionsTimedOut.Inc()
	}
}
