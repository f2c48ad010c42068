package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics instruments the request path.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// NewHTTPMetrics creates the HTTP metric family.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() *HTTPMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &HTTPMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "marklog_http_requests_total",
				Help: "Total HTTP requests by route pattern, method and status code",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "marklog_http_request_duration_milliseconds",
				Help: "HTTP request duration in milliseconds",
				Buckets: []float64{
					1,    // 1ms - cached reads
					5,    // 5ms
					10,   // 10ms - typical store read
					50,   // 50ms
					100,  // 100ms - writes with fanout
					500,  // 500ms
					1000, // 1s
					5000, // 5s - slow outliers
				},
			},
			[]string{"route"},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "marklog_http_requests_in_flight",
				Help: "HTTP requests currently being served",
			},
		),
	}
}

// RequestStarted marks a request in flight.
func (m *HTTPMetrics) RequestStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

// RequestFinished records the completed request.
func (m *HTTPMetrics) RequestFinished(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(float64(duration.Milliseconds()))
}
