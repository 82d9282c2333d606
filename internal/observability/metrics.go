package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Live session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rehearsal_gateway_active_sessions",
		Help: "Number of active live transcription sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rehearsal_gateway_sessions_total",
		Help: "Total number of live transcription sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rehearsal_gateway_session_duration_seconds",
		Help:    "Duration of live transcription sessions in seconds",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
	})

	// Commit scheduling metrics
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rehearsal_gateway_commits_total",
		Help: "Total number of audio buffer commits",
	}, []string{"status"}) // committed, skipped_small, skipped_silent

	committedAudioSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rehearsal_gateway_committed_audio_seconds_total",
		Help: "Total seconds of audio committed for recognition",
	})

	// Transcript metrics
	transcriptEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rehearsal_gateway_transcript_events_total",
		Help: "Transcript events received from the backend",
	}, []string{"kind"}) // partial, final, failed

	utterancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rehearsal_gateway_utterances_total",
		Help: "Finalized utterances emitted by the aggregator",
	})

	// Batch job metrics
	batchSegments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rehearsal_gateway_batch_segments_total",
		Help: "Batch segments processed by final status",
	}, []string{"status"}) // transcribed, failed, oversized

	batchSegmentBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rehearsal_gateway_batch_segment_bytes",
		Help:    "Size of extracted batch segments in bytes",
		Buckets: prometheus.ExponentialBuckets(1<<20, 2, 6),
	})

	batchJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rehearsal_gateway_batch_job_duration_seconds",
		Help:    "Wall-clock duration of batch transcription jobs",
		Buckets: []float64{1, 5, 15, 60, 180, 600, 1800},
	})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rehearsal_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"path"}) // live, batch

	droppedAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rehearsal_gateway_dropped_audio_bytes_total",
		Help: "Audio bytes dropped due to ingress backpressure",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rehearsal_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rehearsal_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// RecordSessionStart records the start of a live session
func RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a live session
func RecordSessionEnd(start time.Time) {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(start).Seconds())
}

// RecordCommit records the outcome of one commit-timer tick
func RecordCommit(status string, audioSeconds float64) {
	commitsTotal.WithLabelValues(status).Inc()
	if audioSeconds > 0 {
		committedAudioSeconds.Add(audioSeconds)
	}
}

// RecordTranscriptEvent records a transcript event by kind
func RecordTranscriptEvent(kind string) {
	transcriptEvents.WithLabelValues(kind).Inc()
}

// RecordUtterance records a finalized utterance
func RecordUtterance() {
	utterancesTotal.Inc()
}

// RecordBatchSegment records the final status and size of one batch segment
func RecordBatchSegment(status string, sizeBytes int64) {
	batchSegments.WithLabelValues(status).Inc()
	if sizeBytes > 0 {
		batchSegmentBytes.Observe(float64(sizeBytes))
	}
}

// RecordBatchJob records a completed batch job
func RecordBatchJob(start time.Time) {
	batchJobDuration.Observe(time.Since(start).Seconds())
}

// RecordAudioBytes records audio bytes flowing through a path
func RecordAudioBytes(path string, bytes int64) {
	audioBytesProcessed.WithLabelValues(path).Add(float64(bytes))
}

// RecordDroppedAudio records audio dropped at the capture ingress
func RecordDroppedAudio(bytes int64) {
	droppedAudioBytes.Add(float64(bytes))
}

// RecordError records an error by type and component
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates the circuit breaker state gauge
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}
