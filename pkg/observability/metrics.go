package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kawanbot_messages_total",
			Help: "Total number of incoming messages",
		},
		[]string{"type", "status"},
	)

	messageHandlingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kawanbot_message_handling_duration_seconds",
			Help:    "Message handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// LLM metrics
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kawanbot_llm_calls_total",
			Help: "Total number of LLM completion calls",
		},
		[]string{"provider", "status"},
	)

	llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kawanbot_llm_call_duration_seconds",
			Help:    "LLM completion call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kawanbot_llm_tokens_total",
			Help: "Total number of LLM tokens consumed",
		},
		[]string{"provider", "direction"},
	)

	// Persona metrics
	moodChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kawanbot_mood_changes_total",
			Help: "Total number of mood re-rolls",
		},
		[]string{"mood"},
	)

	// Memory metrics
	factsExtractedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kawanbot_facts_extracted_total",
			Help: "Total number of new facts stored by consolidation",
		},
	)

	// Session metrics
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kawanbot_active_sessions",
			Help: "Number of sessions held in memory",
		},
	)

	sessionSaveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kawanbot_session_save_failures_total",
			Help: "Total number of failed session persistence attempts",
		},
	)

	initOnce sync.Once
)

// InitMetrics initializes Prometheus metrics
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			messagesTotal,
			messageHandlingDuration,
			llmCallsTotal,
			llmCallDuration,
			llmTokensTotal,
			moodChangesTotal,
			factsExtractedTotal,
			activeSessions,
			sessionSaveFailuresTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordMessage records incoming message metrics
func RecordMessage(msgType, status string, duration time.Duration) {
	messagesTotal.WithLabelValues(msgType, status).Inc()
	messageHandlingDuration.WithLabelValues(msgType).Observe(duration.Seconds())
}

// RecordLLMCall records LLM completion call metrics
func RecordLLMCall(provider, status string, duration time.Duration) {
	llmCallsTotal.WithLabelValues(provider, status).Inc()
	llmCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordLLMTokens records token usage for a completed LLM call
func RecordLLMTokens(provider string, promptTokens, completionTokens int) {
	llmTokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	llmTokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
}

// RecordMoodChange records a mood re-roll
func RecordMoodChange(mood string) {
	moodChangesTotal.WithLabelValues(mood).Inc()
}

// RecordFactsExtracted records newly stored facts
func RecordFactsExtracted(count int) {
	factsExtractedTotal.Add(float64(count))
}

// SetActiveSessions sets the in-memory sessions gauge
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordSessionSaveFailure records a failed persistence attempt
func RecordSessionSaveFailure() {
	sessionSaveFailuresTotal.Inc()
}
