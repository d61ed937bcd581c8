package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests           *prometheus.CounterVec
	CounterGenerations        *prometheus.CounterVec
	CounterToggles            *prometheus.CounterVec
	CounterNotifications      *prometheus.CounterVec
	CounterMaintenance        *prometheus.CounterVec
	CounterHandleRequestPanic prometheus.Counter

	// gauges
	GaugeRequests prometheus.Gauge

	// histograms
	HistRequestDuration    prometheus.Histogram
	HistGenerationDuration *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("fitcoach", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("fitcoach", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterGenerations := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "plan_generations",
		Help:      "Plan generation attempts by category and outcome",
	}, []string{"category", "outcome"})
	counterToggles := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "log_toggles",
		Help:      "Daily log toggles by outcome",
	}, []string{"outcome"})
	counterNotifications := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "notifications",
		Help:      "Broadcast notifications by outcome",
	}, []string{"outcome"})
	counterMaintenance := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "maintenance_rows",
		Help:      "Rows changed by background maintenance, by task",
	}, []string{"task"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})

	histReqDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 10, 60},
			Name:      "request_duration_seconds",
			Help:      "Total duration of requests in seconds",
		},
	)
	histGenerationDuration := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			Name:      "plan_generation_duration_seconds",
			Help:      "Duration of a plan generation including the completion call",
		},
		[]string{"category"},
	)

	return &Manager{
		CounterRequests:           counterRequests,
		CounterGenerations:        counterGenerations,
		CounterToggles:            counterToggles,
		CounterNotifications:      counterNotifications,
		CounterMaintenance:        counterMaintenance,
		CounterHandleRequestPanic: counterHandleRequestPanic,
		GaugeRequests:             gaugeRequests,
		HistRequestDuration:       histReqDuration,
		HistGenerationDuration:    histGenerationDuration,
	}
}

// ObserveGeneration records one generation attempt. Safe on a nil Manager.
func (m *Manager) ObserveGeneration(category, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CounterGenerations.WithLabelValues(category, outcome).Inc()
	m.HistGenerationDuration.WithLabelValues(category).Observe(d.Seconds())
}

// ObserveToggle records one daily log toggle. Safe on a nil Manager.
func (m *Manager) ObserveToggle(outcome string) {
	if m == nil {
		return
	}
	m.CounterToggles.WithLabelValues(outcome).Inc()
}

// ObserveNotification records one broadcast attempt. Safe on a nil Manager.
func (m *Manager) ObserveNotification(outcome string) {
	if m == nil {
		return
	}
	m.CounterNotifications.WithLabelValues(outcome).Inc()
}

// ObserveMaintenance adds the rows a maintenance task changed. Safe on a nil
// Manager.
func (m *Manager) ObserveMaintenance(task string, rows int64) {
	if m == nil {
		return
	}
	m.CounterMaintenance.WithLabelValues(task).Add(float64(rows))
}
