// Package metrics registers oracleflow's Prometheus collectors, covering
// admission, bus, Merkle and realtime activity, and serves them on the
// configured metrics port.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EntriesAdmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracleflow_entries_admitted_total",
			Help: "Number of entries accepted into the bus, by entry type.",
		},
		[]string{"entry_type"},
	)

	EntriesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracleflow_entries_rejected_total",
			Help: "Number of entries rejected at admission, by reason.",
		},
		[]string{"reason"},
	)

	ConsumerBatchSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracleflow_bus_consumer_batch_size",
			Help: "Size of the most recently flushed consumer batch.",
		},
	)

	MerkleBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracleflow_merkle_build_duration_seconds",
			Help:    "Duration of Merkle tree builds on cache miss.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
	)

	RealtimeConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracleflow_realtime_connections",
			Help: "Current number of open realtime WebSocket connections, by channel family.",
		},
		[]string{"family"},
	)

	RealtimeDroppedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracleflow_realtime_dropped_frames_total",
			Help: "Snapshots dropped because the outbound send window was full.",
		},
		[]string{"family"},
	)

	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracleflow_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter, by route class.",
		},
		[]string{"class"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracleflow_http_requests_total",
			Help: "Total HTTP requests handled, by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracleflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path"},
	)
)

// Init registers every collector and starts the metrics HTTP server on
// addr. Safe to call once per process.
func Init(ctx context.Context, addr string) {
	once.Do(func() {
		prometheus.MustRegister(
			EntriesAdmitted,
			EntriesRejected,
			ConsumerBatchSize,
			MerkleBuildDuration,
			RealtimeConnections,
			RealtimeDroppedFrames,
			RateLimitRejections,
			httpRequests,
			httpDuration,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// Handler returns the promhttp handler for mounting on another router,
// e.g. httpapi's /metrics route, independent of Init's standalone listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps next with request-count and latency collection
// labeled by path.
func InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
	})
}
