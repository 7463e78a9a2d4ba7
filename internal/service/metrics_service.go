package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for health checks.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	registrations    *prometheus.CounterVec
	overrides        *prometheus.CounterVec
	promotions       prometheus.Counter
	sectionRetries   *prometheus.CounterVec
	sectionConflicts *prometheus.CounterVec
	criticalSection  *prometheus.HistogramVec
	eventsPublished  *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
	requestCount   uint64
	conflictCount  uint64
	promotionCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "section_state_cache_latency_seconds",
		Help:    "Latency for section state cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "section_state_cache_write_seconds",
		Help:    "Latency for section state cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "section_state_cache_hit_ratio",
		Help: "Ratio of cache hits to total section state lookups",
	})

	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_registrations_total",
		Help: "Registration attempts by outcome (ACTIVE, WAITLISTED or error code)",
	}, []string{"outcome"})

	overrides := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_overrides_total",
		Help: "Force-enroll calls by outcome",
	}, []string{"outcome"})

	promotions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registrar_waitlist_promotions_total",
		Help: "Students promoted from a waitlist",
	})

	sectionRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_section_retries_total",
		Help: "Section transactions retried after a lock timeout or write conflict",
	}, []string{"op"})

	sectionConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_section_conflicts_total",
		Help: "Section transactions that exhausted their retries",
	}, []string{"op"})

	criticalSection := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registrar_critical_section_seconds",
		Help:    "Time spent acquiring and holding a section lock",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_events_published_total",
		Help: "Enrollment events handed to the broker by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio,
		registrations, overrides, promotions, sectionRetries, sectionConflicts, criticalSection, eventsPublished, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		registrations:    registrations,
		overrides:        overrides,
		promotions:       promotions,
		sectionRetries:   sectionRetries,
		sectionConflicts: sectionConflicts,
		criticalSection:  criticalSection,
		eventsPublished:  eventsPublished,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordRegistration counts a registration attempt by outcome.
func (m *MetricsService) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// RecordOverride counts a force-enroll call by outcome.
func (m *MetricsService) RecordOverride(outcome string) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(outcome).Inc()
}

// RecordPromotion counts one waitlist promotion.
func (m *MetricsService) RecordPromotion() {
	if m == nil {
		return
	}
	m.promotions.Inc()
	atomic.AddUint64(&m.promotionCount, 1)
}

// RecordSectionRetry counts a retried section transaction.
func (m *MetricsService) RecordSectionRetry(op string) {
	if m == nil {
		return
	}
	m.sectionRetries.WithLabelValues(op).Inc()
}

// RecordSectionConflict counts a section transaction surfaced as a conflict.
func (m *MetricsService) RecordSectionConflict(op string) {
	if m == nil {
		return
	}
	m.sectionConflicts.WithLabelValues(op).Inc()
	atomic.AddUint64(&m.conflictCount, 1)
}

// ObserveCriticalSection records time spent in one section transaction.
func (m *MetricsService) ObserveCriticalSection(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.criticalSection.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEventPublished counts an event delivery attempt result.
func (m *MetricsService) RecordEventPublished(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(result).Inc()
}

// Snapshot returns aggregated counters for the health endpoint.
func (m *MetricsService) Snapshot() models.RuntimeMetrics {
	if m == nil {
		return models.RuntimeMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return models.RuntimeMetrics{
		RequestsTotal:     atomic.LoadUint64(&m.requestCount),
		CacheHitRatio:     ratio,
		SectionConflicts:  atomic.LoadUint64(&m.conflictCount),
		WaitlistPromotion: atomic.LoadUint64(&m.promotionCount),
		Goroutines:        runtime.NumGoroutine(),
		GeneratedAt:       time.Now().UTC(),
	}
}
