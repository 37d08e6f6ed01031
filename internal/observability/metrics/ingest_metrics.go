package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

// Cost report request types recorded on cost_request_total.
const (
	CostRequestDaily     = "daily"
	CostRequestByService = "by_service"
	CostRequestByRegion  = "by_region"
	CostRequestUsage     = "usage"
	CostRequestMonthly   = "monthly"
	CostRequestSummary   = "summary"
)

const (
	IngestReasonDeadlineExceeded = "deadline_exceeded"
	IngestReasonAuthDenied       = "auth_denied"
	IngestReasonRateLimited      = "rate_limited"
	IngestReasonUnavailable      = "vendor_unavailable"
	IngestReasonMalformed        = "malformed_response"
	IngestReasonDB               = "db"
	IngestReasonUnknown          = "unknown"
)

// IngestMetrics captures ingestion pipeline health signals.
type IngestMetrics struct {
	costRequests   *prometheus.CounterVec
	ingestRuns     *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestRecords  *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	runLoopLag     prometheus.Observer
}

var (
	ingestMetricsOnce sync.Once
	ingestMetrics     *IngestMetrics
)

// Ingest returns the singleton ingestion metrics registry.
func Ingest() *IngestMetrics {
	return IngestWithConfig(Config{})
}

// IngestWithConfig returns the singleton ingestion metrics registry using config labels.
func IngestWithConfig(cfg Config) *IngestMetrics {
	ingestMetricsOnce.Do(func() {
		ingestMetrics = newIngestMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ingestMetrics
}

// ResetIngestMetricsForTest resets the ingestion metrics singleton for tests.
func ResetIngestMetricsForTest() {
	ingestMetricsOnce = sync.Once{}
	ingestMetrics = nil
}

func newIngestMetrics(registerer prometheus.Registerer, cfg Config) *IngestMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cloudtally"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	costRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cost_request_total",
		Help: "Cost report requests by report type.",
	}, []string{"type"})
	ingestRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cloudtally_ingest_runs_total",
		Help:        "Ingestion runs by provider.",
		ConstLabels: constLabels,
	}, []string{"provider"})
	ingestErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cloudtally_ingest_errors_total",
		Help:        "Ingestion errors by provider and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"provider", "reason"})
	ingestRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cloudtally_ingest_records_total",
		Help:        "Normalized billing records written per provider.",
		ConstLabels: constLabels,
	}, []string{"provider"})
	ingestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cloudtally_ingest_duration_seconds",
		Help:        "End-to-end ingestion latency per provider.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"provider"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "cloudtally_scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		costRequests,
		ingestRuns,
		ingestErrors,
		ingestRecords,
		ingestDuration,
		runLoopLag,
	)

	return &IngestMetrics{
		costRequests:   costRequests,
		ingestRuns:     ingestRuns,
		ingestErrors:   ingestErrors,
		ingestRecords:  ingestRecords,
		ingestDuration: ingestDuration,
		runLoopLag:     runLoopLag,
	}
}

// IncCostRequest increments the cost report counter for a request type.
func (m *IngestMetrics) IncCostRequest(requestType string) {
	if m == nil || m.costRequests == nil {
		return
	}
	m.costRequests.WithLabelValues(requestType).Inc()
}

// IncIngestRun increments the run counter for a provider.
func (m *IngestMetrics) IncIngestRun(provider string) {
	if m == nil || m.ingestRuns == nil {
		return
	}
	m.ingestRuns.WithLabelValues(provider).Inc()
}

// IncIngestError increments the error counter with classification.
func (m *IngestMetrics) IncIngestError(provider string, err error) {
	if m == nil || m.ingestErrors == nil || err == nil {
		return
	}
	m.ingestErrors.WithLabelValues(provider, ClassifyIngestReason(err)).Inc()
}

// AddIngestRecords increments the written-record counter by count.
func (m *IngestMetrics) AddIngestRecords(provider string, count int) {
	if m == nil || m.ingestRecords == nil || count <= 0 {
		return
	}
	m.ingestRecords.WithLabelValues(provider).Add(float64(count))
}

// ObserveIngestDuration records end-to-end ingestion latency.
func (m *IngestMetrics) ObserveIngestDuration(provider string, duration time.Duration) {
	if m == nil || m.ingestDuration == nil {
		return
	}
	m.ingestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *IngestMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifyIngestReason maps ingestion errors to low-cardinality reasons.
func ClassifyIngestReason(err error) string {
	switch {
	case err == nil:
		return IngestReasonUnknown
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return IngestReasonDeadlineExceeded
	case errors.Is(err, vendordomain.ErrAuthDenied):
		return IngestReasonAuthDenied
	case errors.Is(err, vendordomain.ErrRateLimited):
		return IngestReasonRateLimited
	case errors.Is(err, vendordomain.ErrUnavailable):
		return IngestReasonUnavailable
	case errors.Is(err, vendordomain.ErrMalformed):
		return IngestReasonMalformed
	case isDBError(err):
		return IngestReasonDB
	default:
		return IngestReasonUnknown
	}
}

// IsIngestErrorRetryable reports whether the error warrants another attempt.
func IsIngestErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, vendordomain.ErrRateLimited) ||
		errors.Is(err, vendordomain.ErrUnavailable)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
