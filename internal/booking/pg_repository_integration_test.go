//go:build integration

package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-booking/internal/testutil/containers"
)

// noLocker leaves all concurrency control to the database.
type noLocker struct{}

func (noLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newPgFixture(t *testing.T, locker Locker) (*PgRepository, *Service, Doctor, Patient) {
	t.Helper()
	ctx := context.Background()
	repo := NewPgRepository(containers.NewPostgres(t))

	d := Doctor{ID: uuid.New(), Name: gofakeit.Name(), Email: gofakeit.Email(), Specialization: "Neurology"}
	require.NoError(t, repo.CreateDoctor(ctx, d))
	phone := gofakeit.Phone()
	p := Patient{ID: uuid.New(), Name: gofakeit.Name(), Email: gofakeit.Email(), Phone: &phone}
	require.NoError(t, repo.CreatePatient(ctx, p))

	return repo, NewService(repo, locker, testConfig()), d, p
}

func TestPgRepository_BookingLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, svc, d, p := newPgFixture(t, NewLocalLocker(2*time.Second))

	entry, err := svc.AddAvailability(ctx, d.ID, "2030-05-02", []string{"09:00", "10:00"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Version)

	merged, err := svc.AddAvailability(ctx, d.ID, "2030-05-02", []string{"10:00", "11:00"})
	require.NoError(t, err)
	assert.Equal(t, entry.ID, merged.ID)
	assert.ElementsMatch(t, []string{"09:00", "10:00", "11:00"}, merged.Slots)

	req := BookingRequest{DoctorID: d.ID, PatientID: p.ID, Date: "2030-05-02", TimeSlot: "10:00"}
	appt, err := svc.BookAppointment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)

	_, err = svc.BookAppointment(ctx, req)
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)

	stored, err := repo.GetAvailabilityByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Slots, "10:00")

	approved, err := svc.UpdateStatus(ctx, appt.ID, StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)

	_, err = svc.UpdateStatus(ctx, appt.ID, StatusRejected)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	details, err := Collect(svc.ListAppointmentsByDoctor(ctx, d.ID))
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.NotNil(t, details[0].Patient)
	assert.Equal(t, p.Email, details[0].Patient.Email)
	require.NotNil(t, details[0].Doctor)
	assert.Equal(t, d.Name, details[0].Doctor.Name)

	_, err = svc.GetAppointment(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgRepository_StaleSave(t *testing.T) {
	ctx := context.Background()
	repo, svc, d, _ := newPgFixture(t, NewLocalLocker(time.Second))

	entry, err := svc.AddAvailability(ctx, d.ID, "2030-05-03", []string{"09:00"})
	require.NoError(t, err)

	first := *entry
	first.Slots = []string{"09:00", "12:00"}
	_, err = repo.SaveAvailability(ctx, first)
	require.NoError(t, err)

	// same base version again loses the CAS
	_, err = repo.SaveAvailability(ctx, first)
	assert.ErrorIs(t, err, ErrStaleAvailability)
}

func TestPgRepository_ConcurrentBookingWithoutLock(t *testing.T) {
	ctx := context.Background()
	repo, svc, d, _ := newPgFixture(t, noLocker{})

	_, err := svc.AddAvailability(ctx, d.ID, "2030-05-04", []string{"09:00"})
	require.NoError(t, err)

	const contenders = 12
	patients := make([]Patient, contenders)
	for i := range patients {
		patients[i] = Patient{ID: uuid.New(), Name: gofakeit.Name(), Email: uuid.NewString() + "@example.com"}
		require.NoError(t, repo.CreatePatient(ctx, patients[i]))
	}

	results := make([]error, contenders)
	var g errgroup.Group
	for i, p := range patients {
		g.Go(func() error {
			_, results[i] = svc.BookAppointment(ctx, BookingRequest{
				DoctorID:  d.ID,
				PatientID: p.ID,
				Date:      "2030-05-04",
				TimeSlot:  "09:00",
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrValidation), errors.Is(err, ErrTransient):
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	details, err := Collect(svc.ListAppointmentsByDoctor(ctx, d.ID))
	require.NoError(t, err)
	assert.Len(t, details, 1)
}

func TestPgRepository_PrunePastAvailability(t *testing.T) {
	ctx := context.Background()
	repo, _, d, _ := newPgFixture(t, NewLocalLocker(time.Second))

	for _, date := range []string{"2001-01-01", "2001-01-02", "2099-01-01"} {
		_, err := repo.SaveAvailability(ctx, AvailabilityEntry{
			ID:       uuid.New(),
			DoctorID: d.ID,
			Date:     date,
			Slots:    []string{"09:00"},
		})
		require.NoError(t, err)
	}

	n, err := repo.DeleteAvailabilityBefore(ctx, "2050-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := repo.ListAvailability(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "2099-01-01", left[0].Date)
}
