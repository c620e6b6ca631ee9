package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ctxKeyRoute struct{}

type routeHolder struct {
	route string
}

// setRoute replaces the raw path in metric labels with a route template so
// ids do not explode label cardinality.
func setRoute(r *http.Request, route string) {
	if h, ok := r.Context().Value(ctxKeyRoute{}).(*routeHolder); ok && h != nil {
		h.route = route
	}
}

type Metrics struct {
	reqTotal    *prometheus.CounterVec
	reqLatency  *prometheus.HistogramVec
	req5xxTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reqTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"route", "method", "status"},
		),
		req5xxTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_requests_5xx_total",
				Help: "Total number of HTTP 5xx responses.",
			},
		),
		reqLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	reg.MustRegister(m.reqTotal, m.reqLatency, m.req5xxTotal)
	return m
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		holder := &routeHolder{route: "unmatched"}
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyRoute{}, holder))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.reqTotal.WithLabelValues(holder.route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.reqLatency.WithLabelValues(holder.route, r.Method).Observe(time.Since(start).Seconds())
		if rec.status >= 500 {
			m.req5xxTotal.Inc()
		}
	})
}
