package booking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/booking/metrics"
)

func TestUpdateStatus_Paths(t *testing.T) {
	tests := []struct {
		name  string
		steps []Status
	}{
		{"approve then complete", []Status{StatusApproved, StatusCompleted}},
		{"reject", []Status{StatusRejected}},
		{"cancel pending", []Status{StatusCancelled}},
		{"cancel approved", []Status{StatusApproved, StatusCancelled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(t, "2030-05-01", "09:00")
			appt, err := f.book("2030-05-01", "09:00")
			require.NoError(t, err)

			for _, s := range tt.steps {
				updated, err := f.svc.UpdateStatus(context.Background(), appt.ID, s)
				require.NoError(t, err)
				assert.Equal(t, s, updated.Status)
			}

			// the slot never comes back, whatever the outcome
			assert.Empty(t, f.slots(t, "2030-05-01"))
		})
	}
}

func TestUpdateStatus_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []Status
		to    Status
	}{
		{"pending to completed", nil, StatusCompleted},
		{"pending to pending", nil, StatusPending},
		{"approved to rejected", []Status{StatusApproved}, StatusRejected},
		{"approved to pending", []Status{StatusApproved}, StatusPending},
		{"rejected is terminal", []Status{StatusRejected}, StatusApproved},
		{"completed is terminal", []Status{StatusApproved, StatusCompleted}, StatusCancelled},
		{"cancelled is terminal", []Status{StatusCancelled}, StatusApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.open(t, "2030-05-01", "09:00")
			appt, err := f.book("2030-05-01", "09:00")
			require.NoError(t, err)
			for _, s := range tt.setup {
				_, err := f.svc.UpdateStatus(ctx, appt.ID, s)
				require.NoError(t, err)
			}

			_, err = f.svc.UpdateStatus(ctx, appt.ID, tt.to)
			assert.ErrorIs(t, err, ErrInvalidStatusTransition)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUpdateStatus_ConfirmedAlias(t *testing.T) {
	f := newFixture(t)
	f.open(t, "2030-05-01", "09:00")
	appt, err := f.book("2030-05-01", "09:00")
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(context.Background(), appt.ID, Status("confirmed"))
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, updated.Status)
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, uuid.New(), StatusApproved)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	f.open(t, "2030-05-01", "09:00")
	appt, err := f.book("2030-05-01", "09:00")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, appt.ID, Status("archived"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateStatus_RecordsEventAndMetric(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	f := newFixture(t, WithMetrics(m))
	f.open(t, "2030-05-01", "09:00")
	appt, err := f.book("2030-05-01", "09:00")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), appt.ID, StatusApproved)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StatusTransitions.WithLabelValues("pending", "approved")))
	assert.Equal(t,
		[]string{EventAppointmentBooked, EventAppointmentStatusChanged},
		eventTypes(f.repo.Events()),
	)
}
