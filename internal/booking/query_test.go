package booking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAppointments_OrderedAndJoined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "2030-06-03", "09:00")
	f.open(t, "2030-06-01", "09:00", "10:00")

	_, err := f.book("2030-06-03", "09:00")
	require.NoError(t, err)
	_, err = f.book("2030-06-01", "10:00")
	require.NoError(t, err)
	_, err = f.book("2030-06-01", "09:00")
	require.NoError(t, err)

	byDoctor, err := Collect(f.svc.ListAppointmentsByDoctor(ctx, f.doctor.ID))
	require.NoError(t, err)
	require.Len(t, byDoctor, 3)

	dates := []string{byDoctor[0].Date, byDoctor[1].Date, byDoctor[2].Date}
	assert.Equal(t, []string{"2030-06-01", "2030-06-01", "2030-06-03"}, dates)
	// same date keeps booking order
	assert.Equal(t, "10:00", byDoctor[0].TimeSlot)
	assert.Equal(t, "09:00", byDoctor[1].TimeSlot)

	require.NotNil(t, byDoctor[0].Patient)
	assert.Equal(t, f.patient.Email, byDoctor[0].Patient.Email)
	assert.Equal(t, f.patient.Phone, byDoctor[0].Patient.Phone)

	byPatient, err := Collect(f.svc.ListAppointmentsByPatient(ctx, f.patient.ID))
	require.NoError(t, err)
	require.Len(t, byPatient, 3)
	require.NotNil(t, byPatient[0].Doctor)
	assert.Equal(t, f.doctor.Name, byPatient[0].Doctor.Name)
	assert.Equal(t, f.doctor.Specialization, byPatient[0].Doctor.Specialization)
}

func TestListAppointments_IncludesEveryStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "2030-06-01", "09:00")

	appt, err := f.book("2030-06-01", "09:00")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, appt.ID, StatusCancelled)
	require.NoError(t, err)

	list, err := Collect(f.svc.ListAppointmentsByPatient(ctx, f.patient.ID))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusCancelled, list[0].Status)
}

func TestListAppointments_LazyAndRestartable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "2030-06-01", "09:00", "10:00", "11:00")

	seq := f.svc.ListAppointmentsByDoctor(ctx, f.doctor.ID)

	// nothing booked yet when the sequence is created
	_, err := f.book("2030-06-01", "09:00")
	require.NoError(t, err)
	_, err = f.book("2030-06-01", "10:00")
	require.NoError(t, err)

	first, err := Collect(seq)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	_, err = f.book("2030-06-01", "11:00")
	require.NoError(t, err)

	second, err := Collect(seq)
	require.NoError(t, err)
	assert.Len(t, second, 3)

	seen := 0
	for _, err := range seq {
		require.NoError(t, err)
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestListAppointments_Empty(t *testing.T) {
	f := newFixture(t)

	list, err := Collect(f.svc.ListAppointmentsByDoctor(context.Background(), uuid.New()))
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestGetAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "2030-06-01", "09:00")
	appt, err := f.book("2030-06-01", "09:00")
	require.NoError(t, err)

	got, err := f.svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)
	require.NotNil(t, got.Doctor)
	require.NotNil(t, got.Patient)

	_, err = f.svc.GetAppointment(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}
