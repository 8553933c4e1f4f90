// Package metrics holds the prometheus collectors for scheduling activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scheduler"

// Booking outcomes recorded by ObserveBooking.
const (
	OutcomeBooked      = "booked"
	OutcomeConflict    = "conflict"
	OutcomeUnavailable = "unavailable"
	OutcomePastDate    = "past_date"
	OutcomeThrottled   = "throttled"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
)

// BookingMetrics exposes counters and histograms for the booking engine.
// A nil *BookingMetrics is valid and records nothing.
type BookingMetrics struct {
	bookingAttempts *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	scheduleEdits   *prometheus.CounterVec
	resolveLatency  prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Appointment lifecycle transitions",
		}, []string{"transition"}),
		scheduleEdits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_edits_total",
			Help:      "Weekly schedule and daily override replacements",
		}, []string{"kind"}),
		resolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_resolve_seconds",
			Help:      "Latency of resolving a doctor's slots for one date",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingAttempts, m.transitions, m.scheduleEdits, m.resolveLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(outcome).Inc()
}

// ObserveTransition records a lifecycle change such as "booked_cancelled".
func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from + "_" + to).Inc()
}

func (m *BookingMetrics) ObserveScheduleEdit(kind string) {
	if m == nil {
		return
	}
	m.scheduleEdits.WithLabelValues(kind).Inc()
}

func (m *BookingMetrics) ObserveResolve(d time.Duration) {
	if m == nil {
		return
	}
	m.resolveLatency.Observe(d.Seconds())
}
