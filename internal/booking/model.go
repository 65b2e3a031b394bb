package booking

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar date format used for availability and appointments.
// Dates are compared as strings; no time zone handling is applied.
const DateLayout = "2006-01-02"

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Specialization string
	CreatedAt      time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     *string
	CreatedAt time.Time
}

// AvailabilityEntry holds the currently bookable slots of one doctor on one date.
// Version is the optimistic concurrency counter; zero means the entry was never stored.
type AvailabilityEntry struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      string
	Slots     []string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSlot reports whether slot is still open on the entry.
func (e AvailabilityEntry) HasSlot(slot string) bool {
	for _, s := range e.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      string
	TimeSlot  string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BookingRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      string
	TimeSlot  string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Doctor  *Doctor
	Patient *Patient
}
