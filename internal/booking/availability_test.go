package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/booking/metrics"
)

func TestAddAvailability_CreatesEntry(t *testing.T) {
	f := newFixture(t)

	e := f.open(t, "2030-03-01", "09:00", "10:00")

	assert.Equal(t, f.doctor.ID, e.DoctorID)
	assert.Equal(t, "2030-03-01", e.Date)
	assert.Equal(t, []string{"09:00", "10:00"}, e.Slots)
	assert.EqualValues(t, 1, e.Version)
	assert.NotEqual(t, uuid.Nil, e.ID)
}

func TestAddAvailability_MergesAsSetUnion(t *testing.T) {
	f := newFixture(t)

	first := f.open(t, "2030-03-01", "09:00", "10:00")
	second := f.open(t, "2030-03-01", "10:00", "11:00")

	assert.Equal(t, first.ID, second.ID)
	assert.ElementsMatch(t, []string{"09:00", "10:00", "11:00"}, second.Slots)

	entries, err := f.svc.ListAvailability(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAddAvailability_Idempotent(t *testing.T) {
	f := newFixture(t)

	first := f.open(t, "2030-03-01", "09:00", "09:00", " 10:00 ")
	again := f.open(t, "2030-03-01", "10:00", "09:00")

	assert.Equal(t, []string{"09:00", "10:00"}, first.Slots)
	assert.Equal(t, first.Slots, again.Slots)
	assert.Equal(t, first.Version, again.Version, "no-op merge must not bump the version")
}

func TestAddAvailability_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		doctorID uuid.UUID
		date     string
		slots    []string
		want     error
		category error
	}{
		{"empty slots", f.doctor.ID, "2030-03-01", nil, ErrEmptySlots, ErrValidation},
		{"blank slot", f.doctor.ID, "2030-03-01", []string{"09:00", "  "}, ErrInvalidSlot, ErrValidation},
		{"bad date", f.doctor.ID, "03/01/2030", []string{"09:00"}, ErrInvalidDate, ErrValidation},
		{"impossible date", f.doctor.ID, "2030-02-30", []string{"09:00"}, ErrInvalidDate, ErrValidation},
		{"unknown doctor", uuid.New(), "2030-03-01", []string{"09:00"}, ErrDoctorNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddAvailability(ctx, tt.doctorID, tt.date, tt.slots)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.category)
		})
	}

	entries, err := f.svc.ListAvailability(ctx, f.doctor.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAddAvailability_ConcurrentMergesKeepEverySlot(t *testing.T) {
	f := newFixture(t)
	const writers = 16

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.AddAvailability(context.Background(), f.doctor.ID, "2030-03-01",
				[]string{fmt.Sprintf("%02d:00", i), "12:00"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	want := []string{"12:00"}
	for i := 0; i < writers; i++ {
		want = append(want, fmt.Sprintf("%02d:00", i))
	}
	assert.ElementsMatch(t, want, f.slots(t, "2030-03-01"))
}

func TestListAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unknown doctor", func(t *testing.T) {
		_, err := f.svc.ListAvailability(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrDoctorNotFound)
	})

	t.Run("empty is not nil", func(t *testing.T) {
		entries, err := f.svc.ListAvailability(ctx, f.doctor.ID)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("ordered by date", func(t *testing.T) {
		f.open(t, "2030-03-05", "09:00")
		f.open(t, "2030-03-01", "09:00")
		f.open(t, "2030-03-03", "09:00")

		other := f.addDoctor(t)
		_, err := f.svc.AddAvailability(ctx, other.ID, "2030-03-02", []string{"09:00"})
		require.NoError(t, err)

		entries, err := f.svc.ListAvailability(ctx, f.doctor.ID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "2030-03-01", entries[0].Date)
		assert.Equal(t, "2030-03-03", entries[1].Date)
		assert.Equal(t, "2030-03-05", entries[2].Date)
	})
}

func TestDeleteAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.open(t, "2030-03-01", "09:00", "10:00")
	appt, err := f.book("2030-03-01", "09:00")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAvailability(ctx, e.ID))

	_, err = f.svc.GetAvailabilityEntry(ctx, e.ID)
	assert.ErrorIs(t, err, ErrAvailabilityNotFound)

	// the remaining open slot is gone with the entry
	_, err = f.book("2030-03-01", "10:00")
	assert.ErrorIs(t, err, ErrAvailabilityNotFound)

	// existing bookings are untouched
	got, err := f.svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	assert.Contains(t, eventTypes(f.repo.Events()), EventAvailabilityDeleted)

	err = f.svc.DeleteAvailability(ctx, e.ID)
	assert.ErrorIs(t, err, ErrAvailabilityNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrunePastAvailability(t *testing.T) {
	now := time.Date(2030, 3, 10, 8, 0, 0, 0, time.UTC)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	f := newFixture(t, WithClock(func() time.Time { return now }), WithMetrics(m))

	f.open(t, "2030-03-08", "09:00")
	f.open(t, "2030-03-09", "09:00")
	f.open(t, "2030-03-10", "09:00")
	f.open(t, "2030-03-11", "09:00")

	n, err := f.svc.PrunePastAvailability(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	entries, err := f.svc.ListAvailability(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2030-03-10", entries[0].Date)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AvailabilityWrites.WithLabelValues("prune")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.AvailabilityWrites.WithLabelValues("merge")))
}

func TestNormalizeSlots(t *testing.T) {
	got, err := NormalizeSlots([]string{" 09:00", "10:00", "09:00 ", "08:00"})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "08:00"}, got)

	_, err = NormalizeSlots([]string{})
	assert.ErrorIs(t, err, ErrEmptySlots)
}
