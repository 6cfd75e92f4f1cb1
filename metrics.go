package elevation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tilesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elevation_tiles_loaded",
		Help: "The number of tiles loaded",
	})
	tileLoadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_tile_load_failures_total",
		Help: "The total number of files that could not be loaded as tiles",
	})
	pointQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_point_queries_total",
		Help: "The total number of point queries by result",
	}, []string{"result"})
	pointQueryHits   = pointQueries.WithLabelValues("hit")
	pointQueryMisses = pointQueries.WithLabelValues("miss")
	blockCacheHits   = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_block_cache_hits_total",
		Help: "The total number of hits on the GeoTIFF block cache",
	})
	blockCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_block_cache_misses_total",
		Help: "The total number of misses on the GeoTIFF block cache",
	})
	fileCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elevation_file_cache_evictions_total",
		Help: "The total number of files closed by the open file cache",
	})
	batchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elevation_batch_requests_total",
		Help: "The total number of batch requests by HTTP status code",
	}, []string{"code"})
	batchPoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "elevation_batch_points",
		Help:    "The number of points per batch request",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "elevation_batch_duration_seconds",
		Help:    "The time taken to answer batch requests",
		Buckets: prometheus.DefBuckets,
	})
)
