package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// UpdateStatus moves an appointment along the lifecycle:
//
//	pending  -> approved | rejected | cancelled
//	approved -> completed | cancelled
//
// Rejected, completed and cancelled are terminal. No transition returns the
// slot to the availability ledger.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (updated *Appointment, err error) {
	ctx, span := s.startSpan(ctx, "booking.UpdateStatus",
		attribute.String("appointment_id", id.String()),
		attribute.String("status", string(to)),
	)
	defer func() { endSpan(span, err) }()

	to, err = ParseStatus(string(to))
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.cfg.BookingRetries; attempt++ {
		current, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return nil, lookupErr(err, "load appointment")
		}

		if !CanTransition(current.Status, to) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, to)
		}

		updated, err = s.repo.UpdateAppointmentStatus(ctx, id, current.Status, to)
		if errors.Is(err, ErrAppointmentNotFound) {
			// status moved underneath us; re-read and re-validate
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update appointment status: %w", err)
		}

		s.metrics.IncStatusTransition(string(current.Status), string(to))
		s.logEvent(ctx, &updated.ID, EventAppointmentStatusChanged, map[string]any{
			"from": current.Status,
			"to":   to,
		})
		return updated, nil
	}

	return nil, fmt.Errorf("%w: appointment %s changed concurrently", ErrTransient, id)
}
