package app

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/domain"
)

// Metrics are optional; a nil *Metrics records nothing.
type Metrics struct {
	reservations  *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	validations   *prometheus.CounterVec
	lockWait      *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_reservations_total",
				Help: "Reservation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		cancellations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_cancellations_total",
				Help: "Cancellation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_validations_total",
				Help: "Validation attempts by method and outcome (VALID, INVALID or an error kind).",
			},
			[]string{"method", "outcome"},
		),
		lockWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_lock_wait_seconds",
				Help:    "Time spent acquiring the per-entity serialization point.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(m.reservations, m.cancellations, m.validations, m.lockWait)
	return m
}

func (m *Metrics) reservation(err error) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) cancellation(err error) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) validation(method domain.ValidationMethod, v domain.TicketValidation, err error) {
	if m == nil {
		return
	}
	label := outcome(err)
	if err == nil {
		label = string(v.Result)
	}
	m.validations.WithLabelValues(string(method), label).Inc()
}

func (m *Metrics) waited(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(operation).Observe(d.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrTicketsSoldOut):
		return "sold_out"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
