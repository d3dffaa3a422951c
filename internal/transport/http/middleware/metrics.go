package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/expense-iam/internal/infra/telemetry"
)

// Response outcomes recorded per route. They mirror how the API reports
// authentication results, so a spike in locked or unauthenticated logins is visible per route.
const (
	OutcomeOK              = "ok"
	OutcomeInvalidRequest  = "invalid_request"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeForbidden       = "forbidden"
	OutcomeNotFound        = "not_found"
	OutcomeLocked          = "locked"
	OutcomeThrottled       = "throttled"
	OutcomeError           = "error"
	OutcomeOther           = "other"
)

const unmatchedRoute = "unmatched"

// HTTPMetricsOptions configures the HTTP metrics middleware.
type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// HTTPMetrics exposes Prometheus collectors for request instrumentation.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics constructs the request collectors and registers them with the provided registerer.
func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "expense"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		// Login latency is dominated by argon2; the defaults stop too early to see it.
		buckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5}
	}

	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests partitioned by method, route and outcome.",
		}, []string{"method", "route", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency partitioned by method and route.",
			Buckets:   buckets,
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}

	if err := telemetry.Register(reg, &m.Requests); err != nil {
		return nil, err
	}
	if err := telemetry.Register(reg, &m.Duration); err != nil {
		return nil, err
	}
	if err := telemetry.Register(reg, &m.InFlight); err != nil {
		return nil, err
	}
	return m, nil
}

// OutcomeForStatus maps a response status to the outcome label.
func OutcomeForStatus(status int) string {
	switch {
	case status >= 200 && status < 300:
		return OutcomeOK
	case status == http.StatusBadRequest:
		return OutcomeInvalidRequest
	case status == http.StatusUnauthorized:
		return OutcomeUnauthenticated
	case status == http.StatusForbidden:
		return OutcomeForbidden
	case status == http.StatusNotFound:
		return OutcomeNotFound
	case status == http.StatusLocked:
		return OutcomeLocked
	case status == http.StatusTooManyRequests:
		return OutcomeThrottled
	case status >= 500:
		return OutcomeError
	default:
		return OutcomeOther
	}
}

// Handler returns a Gin middleware that records the HTTP metrics.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		c.Next()

		// Unknown paths share one label so scanners cannot inflate cardinality.
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		m.Requests.WithLabelValues(c.Request.Method, route, OutcomeForStatus(c.Writer.Status())).Inc()
		m.Duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
