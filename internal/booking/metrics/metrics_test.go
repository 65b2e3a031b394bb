package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBooking(time.Now(), "success")
		m.IncStatusTransition("pending", "approved")
		m.IncAvailabilityWrite("merge")
	})
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveBooking(time.Now().Add(-10*time.Millisecond), "conflict")
	m.ObserveBooking(time.Now(), "success")
	m.IncStatusTransition("pending", "rejected")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Bookings.WithLabelValues("conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StatusTransitions.WithLabelValues("pending", "rejected")))

	n, err := testutil.GatherAndCount(reg, "clinic_booking_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
