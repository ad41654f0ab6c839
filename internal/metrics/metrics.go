package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	namespace = "stackit"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	VotesTotal             *prometheus.CounterVec
	AcceptsTotal           *prometheus.CounterVec
	CommentsTotal          *prometheus.CounterVec
	NotificationsTotal     *prometheus.CounterVec
	NotificationQueueDepth prometheus.Gauge
	VoteCountsReconciled   prometheus.Counter
	JobRunsTotal           *prometheus.CounterVec

	logger *zap.Logger
}

// New creates and registers all metrics with the default registry
func New(logger *zap.Logger) *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, logger)
}

// NewWithRegistry creates and registers all metrics with a custom registry
func NewWithRegistry(registerer prometheus.Registerer, logger *zap.Logger) *Metrics {
	factory := promauto.With(registerer)

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "endpoint"},
		),
		VotesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "votes_total",
				Help:      "Votes cast by target type and outcome (added, removed, changed)",
			},
			[]string{"target", "outcome"},
		),
		AcceptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answer_accepts_total",
				Help:      "Accept/unaccept operations by outcome",
			},
			[]string{"outcome"},
		),
		CommentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "comments_total",
				Help:      "Comment mutations by operation",
			},
			[]string{"operation"},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications handled by the emitter by type and result",
			},
			[]string{"type", "result"},
		),
		NotificationQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "notification_queue_depth",
				Help:      "Notifications waiting in the emitter queue",
			},
		),
		VoteCountsReconciled: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vote_counts_reconciled_total",
				Help:      "Denormalized vote counts repaired by the reconciliation job",
			},
		),
		JobRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		),
		logger: logger,
	}
}

// safeExecute 指标记录失败不能影响业务
func (m *Metrics) safeExecute(operation string, fn func()) {
	if m == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("metrics operation panicked",
				zap.String("operation", operation),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
