package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IndexBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kd_index_builds_total",
		Help: "Total dataset index builds by source (snapshot, rebuild)",
	}, []string{"source"})
	IndexBuildDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kd_index_build_duration_ms",
		Help:    "Dataset index build duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	IndexInvalidationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kd_index_invalidations_total",
		Help: "Total dataset indexes dropped from memory",
	})
	SnapshotErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kd_snapshot_errors_total",
		Help: "Snapshot failures by operation (load, decode, save, delete)",
	}, []string{"op"})
	PointsInsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kd_points_inserted_total",
		Help: "Total points written through the catalog",
	})
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kd_queries_total",
		Help: "Total index queries by kind",
	}, []string{"query"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kd_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kd_redis_hits_total",
		Help: "Total redis cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kd_redis_misses_total",
		Help: "Total redis cache misses",
	})
)

func init() {
	prometheus.MustRegister(IndexBuildsTotal)
	prometheus.MustRegister(IndexBuildDurationMs)
	prometheus.MustRegister(IndexInvalidationsTotal)
	prometheus.MustRegister(SnapshotErrorsTotal)
	prometheus.MustRegister(PointsInsertedTotal)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(RedisHitsTotal)
	prometheus.MustRegister(RedisMissesTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
