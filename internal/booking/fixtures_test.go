package booking

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		StoreBackend:   config.StoreMemory,
		LockBackend:    config.LockLocal,
		LockWait:       2 * time.Second,
		LockTTL:        5 * time.Second,
		BookingRetries: 3,
		RetryBackoff:   time.Millisecond,
	}
}

type fixture struct {
	repo    *MemoryRepository
	svc     *Service
	doctor  Doctor
	patient Patient
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	repo := NewMemoryRepository()
	f := &fixture{
		repo: repo,
		svc:  NewService(repo, NewLocalLocker(2*time.Second), testConfig(), opts...),
	}
	f.doctor = f.addDoctor(t)
	f.patient = f.addPatient(t)
	return f
}

func (f *fixture) addDoctor(t *testing.T) Doctor {
	t.Helper()
	d := Doctor{
		ID:             uuid.New(),
		Name:           gofakeit.Name(),
		Email:          gofakeit.Email(),
		Specialization: "Cardiology",
	}
	require.NoError(t, f.repo.CreateDoctor(context.Background(), d))
	return d
}

func (f *fixture) addPatient(t *testing.T) Patient {
	t.Helper()
	phone := gofakeit.Phone()
	p := Patient{
		ID:    uuid.New(),
		Name:  gofakeit.Name(),
		Email: gofakeit.Email(),
		Phone: &phone,
	}
	require.NoError(t, f.repo.CreatePatient(context.Background(), p))
	return p
}

func (f *fixture) open(t *testing.T, date string, slots ...string) *AvailabilityEntry {
	t.Helper()
	e, err := f.svc.AddAvailability(context.Background(), f.doctor.ID, date, slots)
	require.NoError(t, err)
	return e
}

func (f *fixture) book(date, slot string) (*Appointment, error) {
	return f.svc.BookAppointment(context.Background(), BookingRequest{
		DoctorID:  f.doctor.ID,
		PatientID: f.patient.ID,
		Date:      date,
		TimeSlot:  slot,
	})
}

func (f *fixture) slots(t *testing.T, date string) []string {
	t.Helper()
	e, err := f.repo.GetAvailability(context.Background(), f.doctor.ID, date)
	require.NoError(t, err)
	return e.Slots
}

// busyLocker never grants the lock.
type busyLocker struct {
	calls int
}

func (l *busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	l.calls++
	return ErrLockNotAcquired
}

// staleRepository loses every booking compare-and-swap.
type staleRepository struct {
	*MemoryRepository
	commits int
}

func (r *staleRepository) CommitBooking(context.Context, AvailabilityEntry, Appointment) (*Appointment, error) {
	r.commits++
	return nil, ErrStaleAvailability
}

func eventTypes(events []EventLog) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}
