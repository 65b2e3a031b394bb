package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the booking core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Bookings           *prometheus.CounterVec
	BookingDuration    prometheus.Histogram
	StatusTransitions  *prometheus.CounterVec
	AvailabilityWrites *prometheus.CounterVec
}

// New registers the booking metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_bookings_total",
			Help: "Booking attempts by outcome",
		}, []string{"outcome"}),
		BookingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinic_booking_duration_seconds",
			Help:    "Duration of BookAppointment including lock wait",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_appointment_status_transitions_total",
			Help: "Applied appointment status transitions",
		}, []string{"from", "to"}),
		AvailabilityWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_availability_writes_total",
			Help: "Availability ledger mutations by operation",
		}, []string{"operation"}),
	}
}

// ObserveBooking records one booking attempt. Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveBooking(start time.Time, outcome string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(outcome).Inc()
	m.BookingDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncAvailabilityWrite(operation string) {
	if m == nil {
		return
	}
	m.AvailabilityWrites.WithLabelValues(operation).Inc()
}
