package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Summarize pipeline metrics
	SummarizeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarizer_requests_total",
			Help: "Total /summarize commands by outcome",
		},
		[]string{"outcome"}, // "success", "rejected", "failed", "invalid"
	)

	AdmissionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarizer_admission_rejections_total",
			Help: "Requests rejected before the LLM call",
		},
		[]string{"reason"}, // "user_limit", "cooldown", "cost", "in_flight", "empty"
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "summarizer_llm_request_duration_seconds",
			Help:    "LLM request duration",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 180},
		},
		[]string{"status"},
	)

	LLMCostDollars = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "summarizer_llm_cost_dollars_total",
			Help: "Accumulated billed LLM cost in dollars",
		},
	)

	EstimatedCostDollars = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summarizer_estimated_cost_dollars",
			Help:    "Estimated prompt cost before the LLM call",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2},
		},
	)

	ReplyChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summarizer_reply_chunks",
			Help:    "Number of chunks per summary reply",
			Buckets: []float64{1, 2, 3, 4, 6, 8},
		},
	)

	// Platform metrics
	TelegramErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarizer_telegram_errors_total",
			Help: "Failed Telegram API calls",
		},
		[]string{"op"},
	)

	MessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "summarizer_messages_stored_total",
			Help: "Chat messages appended to the history window",
		},
	)

	// Housekeeping metrics
	LogEntriesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "summarizer_log_entries_pruned_total",
			Help: "Request log entries deleted by retention",
		},
	)

	// Admin panel metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summarizer_http_requests_total",
			Help: "Total admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "summarizer_http_request_duration_seconds",
			Help:    "Admin HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)
