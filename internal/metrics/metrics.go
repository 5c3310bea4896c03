package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_sessions_active",
		Help: "Call sessions currently in ringing or active state",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_sessions_total",
		Help: "Total call sessions created",
	})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_session_transitions_total",
		Help: "Session state transitions applied",
	}, []string{"transition"})

	TranscriptsFinal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcripts_final_total",
		Help: "Final transcription results persisted to the conversation log",
	})

	TranscriptsInterim = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcripts_interim_total",
		Help: "Interim transcription results broadcast (never persisted)",
	})

	SuggestionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "suggestion_generation_duration_seconds",
		Help:    "AI suggestion generation latency",
		Buckets: []float64{0.2, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0},
	})

	SuggestionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suggestion_fallbacks_total",
		Help: "Suggestion requests served from the fixed fallback set",
	})

	TranscribeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_transcribe_duration_seconds",
		Help:    "Batch transcription proxy latency",
		Buckets: []float64{0.2, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	EmbeddingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "embedding_duration_seconds",
		Help:    "Embedding generation latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0},
	})

	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_clients_connected",
		Help: "WebSocket clients currently subscribed to session channels",
	})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_total",
		Help: "Events published on session channels",
	}, []string{"event"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Error counts by component",
	}, []string{"component", "error_type"})
)
