package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"thermal-eye/internal/domain/entity"
)

// Metrics счётчики Prometheus для конвейера анализа.
type Metrics struct {
	registry *prometheus.Registry

	analysesTotal    *prometheus.CounterVec
	findingsTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
}

// NewMetrics создаёт и регистрирует метрики в собственном реестре.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		analysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermal_eye",
			Name:      "analyses_total",
			Help:      "Number of completed analyses by final status.",
		}, []string{"status"}),
		findingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermal_eye",
			Name:      "findings_total",
			Help:      "Number of classified findings by risk tier.",
		}, []string{"tier"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "thermal_eye",
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis duration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(m.analysesTotal, m.findingsTotal, m.analysisDuration)
	return m
}

// Registry возвращает реестр для отдачи через /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAnalysis учитывает один завершённый анализ.
func (m *Metrics) ObserveAnalysis(res *entity.AnalysisResult, elapsed time.Duration) {
	m.analysesTotal.WithLabelValues(string(res.Status)).Inc()
	for _, f := range res.Findings {
		m.findingsTotal.WithLabelValues(string(f.Verdict.Tier)).Inc()
	}
	m.analysisDuration.Observe(elapsed.Seconds())
}
