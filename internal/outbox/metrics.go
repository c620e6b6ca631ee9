package outbox

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	ClaimedTotal   prometheus.Counter
	PublishedTotal *prometheus.CounterVec
	FailedTotal    *prometheus.CounterVec
	RequeuedTotal  prometheus.Counter
	LagSeconds     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "outbox_claimed_total", Help: "Claimed outbox rows."},
		),
		PublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "outbox_published_total", Help: "Published outbox events."},
			[]string{"event_type"},
		),
		FailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "outbox_failed_total", Help: "Failed outbox publish attempts."},
			[]string{"event_type"},
		),
		RequeuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "outbox_requeued_total", Help: "Stuck outbox rows moved back to pending."},
		),
		LagSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "outbox_lag_seconds", Help: "Age in seconds of the oldest claimed outbox row."},
		),
	}
	reg.MustRegister(m.ClaimedTotal, m.PublishedTotal, m.FailedTotal, m.RequeuedTotal, m.LagSeconds)
	return m
}
