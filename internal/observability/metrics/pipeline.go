package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

// PipelineMetrics records ingestion and query outcomes.
type PipelineMetrics struct {
	service string

	uploadTotal    *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	pagesTotal     *prometheus.CounterVec
	queryTotal     *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	uploadTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total processed uploads by status.",
		},
		[]string{"service", "status"},
	)
	uploadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "upload_duration_seconds",
			Help:      "Upload processing duration in seconds by status.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	pagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "pages_total",
			Help:      "Extracted pages by text source.",
		},
		[]string{"service", "source"},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total answered queries by mode and outcome.",
		},
		[]string{"service", "mode", "outcome"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query duration in seconds by mode.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)

	registerer.MustRegister(uploadTotal, uploadDuration, pagesTotal, queryTotal, queryDuration)

	return &PipelineMetrics{
		service:        service,
		uploadTotal:    uploadTotal,
		uploadDuration: uploadDuration,
		pagesTotal:     pagesTotal,
		queryTotal:     queryTotal,
		queryDuration:  queryDuration,
	}
}

func (m *PipelineMetrics) ObserveUpload(duration time.Duration, pages []domain.PageText, err error) {
	status := uploadStatus(err)
	m.uploadTotal.WithLabelValues(m.service, status).Inc()
	m.uploadDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
	for _, p := range pages {
		m.pagesTotal.WithLabelValues(m.service, string(p.Source)).Inc()
	}
}

func (m *PipelineMetrics) ObserveQuery(mode domain.QueryMode, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.queryTotal.WithLabelValues(m.service, string(mode), outcome).Inc()
	m.queryDuration.WithLabelValues(m.service, string(mode)).Observe(duration.Seconds())
}

func uploadStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid"
	case domain.IsKind(err, domain.ErrCapacity):
		return "capacity"
	case domain.IsKind(err, domain.ErrExtraction):
		return "extraction"
	case domain.IsKind(err, domain.ErrChunking):
		return "chunking"
	case domain.IsKind(err, domain.ErrIndex):
		return "index"
	default:
		return "error"
	}
}
