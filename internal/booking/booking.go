package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// BookAppointment reserves a slot for a patient. Preconditions are checked in a
// fixed order and the first failure is returned:
//
//	doctor exists, patient exists, availability exists for the date,
//	slot is offered, no live appointment holds the slot.
//
// The last three checks and the commit run under the per-(doctor, date) lock,
// and the commit itself is a compare-and-swap on the availability version, so
// concurrent requests for one slot yield one success and conflicts for the rest.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (appt *Appointment, err error) {
	start := s.now()
	ctx, span := s.startSpan(ctx, "booking.BookAppointment",
		attribute.String("doctor_id", req.DoctorID.String()),
		attribute.String("patient_id", req.PatientID.String()),
		attribute.String("date", req.Date),
		attribute.String("time_slot", req.TimeSlot),
	)
	defer func() {
		s.metrics.ObserveBooking(start, Outcome(err))
		endSpan(span, err)
	}()

	if err := ValidateDate(req.Date); err != nil {
		return nil, err
	}
	slot := strings.TrimSpace(req.TimeSlot)
	if slot == "" {
		return nil, ErrInvalidSlot
	}

	if _, err := s.repo.GetDoctorByID(ctx, req.DoctorID); err != nil {
		return nil, lookupErr(err, "load doctor")
	}
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		return nil, lookupErr(err, "load patient")
	}

	key := AvailabilityLockKey(req.DoctorID, req.Date)
	err = s.retry(ctx, func() error {
		return s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
			created, err := s.reserve(lockCtx, req.DoctorID, req.PatientID, req.Date, slot)
			if err != nil {
				return err
			}
			appt = created
			return nil
		})
	})
	if err != nil {
		if retryable(err) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logEvent(ctx, &appt.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  req.DoctorID.String(),
		"patient_id": req.PatientID.String(),
		"date":       req.Date,
		"time_slot":  slot,
	})

	return appt, nil
}

// reserve runs inside the availability lock.
func (s *Service) reserve(ctx context.Context, doctorID, patientID uuid.UUID, date, slot string) (*Appointment, error) {
	entry, err := s.repo.GetAvailability(ctx, doctorID, date)
	if err != nil {
		return nil, lookupErr(err, "load availability")
	}

	live, err := s.repo.GetLiveAppointment(ctx, doctorID, date, slot)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("check live appointment: %w", err)
	}

	if !entry.HasSlot(slot) {
		// A slot that is gone because a live booking consumed it is a conflict,
		// not an input error.
		if live != nil {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, ErrSlotNotOffered
	}
	if live != nil {
		return nil, ErrSlotAlreadyBooked
	}

	next := *entry
	next.Slots = removeSlot(entry.Slots, slot)

	created, err := s.repo.CommitBooking(ctx, next, Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      date,
		TimeSlot:  slot,
		Status:    StatusPending,
	})
	if err != nil {
		if errors.Is(err, ErrSlotAlreadyBooked) || retryable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	return created, nil
}
