package service

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"decoration-mirror/models"
)

// Metrics exposes Prometheus collectors for the sync pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	discovered       *prometheus.CounterVec
	materialized     *prometheus.CounterVec
	cleanupDeleted   *prometheus.CounterVec
	syncRuns         *prometheus.CounterVec
	downloadRequests *prometheus.CounterVec
	rateLimitWaits   prometheus.Counter
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the instance registered with the global Prometheus registry
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics on reg. Collectors already present on reg are reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		discovered: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "decoration_mirror",
			Subsystem: "discovery",
			Name:      "references_total",
			Help:      "Distinct decoration references upserted by discovery, by outcome.",
		}, []string{"category", "outcome"}),
		materialized: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "decoration_mirror",
			Subsystem: "materialize",
			Name:      "assets_total",
			Help:      "Assets processed by the sync orchestrator, by result.",
		}, []string{"category", "result"}),
		cleanupDeleted: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "decoration_mirror",
			Subsystem: "cleanup",
			Name:      "deleted_files_total",
			Help:      "Orphaned asset files deleted by the cleanup sweeper.",
		}, []string{"category"}),
		syncRuns: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "decoration_mirror",
			Name:      "sync_runs_total",
			Help:      "Closed sync runs by type and terminal status.",
		}, []string{"sync_type", "status"}),
		downloadRequests: registerCounterVec(reg, prometheus.CounterOpts{
			Namespace: "decoration_mirror",
			Subsystem: "download",
			Name:      "requests_total",
			Help:      "CDN download requests by result.",
		}, []string{"result"}),
		rateLimitWaits: registerCounter(reg, prometheus.CounterOpts{
			Namespace: "decoration_mirror",
			Subsystem: "remote",
			Name:      "rate_limit_waits_total",
			Help:      "Times the remote client suspended on HTTP 429.",
		}),
	}
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return vec
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	counter := prometheus.NewCounter(opts)
	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
		panic(err)
	}
	return counter
}

func (m *Metrics) observeDiscovered(category models.Category, created bool) {
	if m == nil {
		return
	}
	outcome := "updated"
	if created {
		outcome = "added"
	}
	m.discovered.WithLabelValues(string(category), outcome).Inc()
}

func (m *Metrics) observeMaterialized(category models.Category, result string) {
	if m == nil {
		return
	}
	m.materialized.WithLabelValues(string(category), result).Inc()
}

func (m *Metrics) observeCleanup(category models.Category, deleted int) {
	if m == nil || deleted <= 0 {
		return
	}
	m.cleanupDeleted.WithLabelValues(string(category)).Add(float64(deleted))
}

func (m *Metrics) observeSyncRun(run *models.SyncRun) {
	if m == nil || run == nil {
		return
	}
	m.syncRuns.WithLabelValues(string(run.SyncType), string(run.Status)).Inc()
}

func (m *Metrics) observeDownload(result string) {
	if m == nil {
		return
	}
	m.downloadRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) observeRateLimitWait() {
	if m == nil {
		return
	}
	m.rateLimitWaits.Inc()
}
