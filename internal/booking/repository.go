package booking

import (
	"context"
	"iter"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	// Identity store
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Availability ledger
	ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityEntry, error)
	GetAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*AvailabilityEntry, error)
	GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*AvailabilityEntry, error)
	// SaveAvailability inserts the entry when its Version is zero and otherwise
	// replaces its slots only if the stored version still equals entry.Version.
	// A lost race returns ErrStaleAvailability.
	SaveAvailability(ctx context.Context, entry AvailabilityEntry) (*AvailabilityEntry, error)
	DeleteAvailability(ctx context.Context, id uuid.UUID) error
	DeleteAvailabilityBefore(ctx context.Context, date string) (int64, error)

	// Appointment registry
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	GetLiveAppointment(ctx context.Context, doctorID uuid.UUID, date, slot string) (*Appointment, error)
	// CommitBooking stores entry (already stripped of the booked slot) with a
	// compare-and-swap on entry.Version and inserts appt, as one unit.
	CommitBooking(ctx context.Context, entry AvailabilityEntry, appt Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Query views, ordered by date then creation time. Each iteration re-reads storage.
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) iter.Seq2[AppointmentDetail, error]
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) iter.Seq2[AppointmentDetail, error]

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// IdentityWriter populates the identity store. Only seeding and tests use it;
// the booking core treats doctors and patients as read-only references.
type IdentityWriter interface {
	CreateDoctor(ctx context.Context, d Doctor) error
	CreatePatient(ctx context.Context, p Patient) error
}
