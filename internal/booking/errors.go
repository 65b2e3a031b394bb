package booking

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the service wraps exactly one of them,
// so transports can map categories without knowing every specific error.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("temporarily unavailable")
)

var (
	ErrDoctorNotFound       = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound      = fmt.Errorf("patient %w", ErrNotFound)
	ErrAvailabilityNotFound = fmt.Errorf("availability %w", ErrNotFound)
	ErrAppointmentNotFound  = fmt.Errorf("appointment %w", ErrNotFound)

	ErrEmptySlots              = fmt.Errorf("%w: at least one slot is required", ErrValidation)
	ErrInvalidDate             = fmt.Errorf("%w: date must be formatted as YYYY-MM-DD", ErrValidation)
	ErrInvalidSlot             = fmt.Errorf("%w: slot labels must not be blank", ErrValidation)
	ErrSlotNotOffered          = fmt.Errorf("%w: slot not offered", ErrValidation)
	ErrInvalidStatus           = fmt.Errorf("%w: unknown appointment status", ErrValidation)
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", ErrValidation)

	ErrSlotAlreadyBooked = fmt.Errorf("%w: slot already booked", ErrConflict)

	ErrSlotBeingBooked = fmt.Errorf("%w: slot is currently being booked, please retry", ErrTransient)
	ErrLockNotAcquired = fmt.Errorf("%w: availability lock not acquired", ErrTransient)

	// ErrStaleAvailability is returned by repositories when a compare-and-swap on an
	// availability entry loses against a concurrent writer.
	ErrStaleAvailability = fmt.Errorf("%w: availability entry changed concurrently", ErrTransient)
)
