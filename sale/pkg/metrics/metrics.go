package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stagesale_build_info",
			Help: "Build information of the stage sale daemon",
		},
		[]string{"version", "commit", "date"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagesale_operations_total",
			Help: "Total number of sale operations by outcome",
		},
		[]string{"op", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stagesale_operation_duration_seconds",
			Help:    "Duration of sale operations including lock wait",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
		},
		[]string{"op"},
	)

	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagesale_rollbacks_total",
			Help: "Total number of rolled back operations by error kind",
		},
		[]string{"op", "kind"},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagesale_purchases_total",
			Help: "Total number of committed purchases",
		},
		[]string{"route"}, // "direct", "channel"
	)

	TokensIssued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stagesale_tokens_issued",
			Help: "Total units issued by the ledger",
		},
	)

	FundsRaised = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stagesale_funds_raised",
			Help: "Total funds contributed through the purchase pipeline",
		},
	)

	ReferralBonusTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stagesale_referral_bonus_tokens_total",
			Help: "Total units minted as referral bonuses",
		},
	)

	EventsPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stagesale_events_published_total",
			Help: "Total number of committed signals",
		},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stagesale_events_dropped_total",
			Help: "Total number of signal batches dropped because the dispatch queue was full",
		},
	)

	EventLogGapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stagesale_eventlog_gaps_total",
			Help: "Total number of seq gaps seen by the durable event log",
		},
	)

	SinkWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagesale_sink_writes_total",
			Help: "Total number of sink writes",
		},
		[]string{"sink", "status"},
	)

	SinkWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stagesale_sink_write_duration_seconds",
			Help:    "Duration of sink writes",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4.1s
		},
		[]string{"sink"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagesale_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stagesale_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stagesale_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordOperation records the outcome of a host operation.
func RecordOperation(op string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(op, status).Inc()
	OperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSinkWrite records metrics for a sink write.
func RecordSinkWrite(sink string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SinkWritesTotal.WithLabelValues(sink, status).Inc()
	SinkWriteDuration.WithLabelValues(sink).Observe(duration.Seconds())
}
