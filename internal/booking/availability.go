package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ListAvailability returns the doctor's entries in ascending date order.
func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) (entries []AvailabilityEntry, err error) {
	ctx, span := s.startSpan(ctx, "booking.ListAvailability", attribute.String("doctor_id", doctorID.String()))
	defer func() { endSpan(span, err) }()

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, lookupErr(err, "load doctor")
	}

	entries, err = s.repo.ListAvailability(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	if entries == nil {
		entries = []AvailabilityEntry{}
	}
	return entries, nil
}

func (s *Service) GetAvailabilityEntry(ctx context.Context, id uuid.UUID) (*AvailabilityEntry, error) {
	entry, err := s.repo.GetAvailabilityByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "load availability")
	}
	return entry, nil
}

// AddAvailability creates the (doctor, date) entry or merges slots into it.
// Merging is a set union: repeating a slot, or the whole call, changes nothing.
func (s *Service) AddAvailability(ctx context.Context, doctorID uuid.UUID, date string, slots []string) (entry *AvailabilityEntry, err error) {
	ctx, span := s.startSpan(ctx, "booking.AddAvailability",
		attribute.String("doctor_id", doctorID.String()),
		attribute.String("date", date),
	)
	defer func() { endSpan(span, err) }()

	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	requested, err := NormalizeSlots(slots)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, lookupErr(err, "load doctor")
	}

	key := AvailabilityLockKey(doctorID, date)
	err = s.retry(ctx, func() error {
		return s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
			current, err := s.repo.GetAvailability(lockCtx, doctorID, date)
			switch {
			case errors.Is(err, ErrAvailabilityNotFound):
				current = &AvailabilityEntry{DoctorID: doctorID, Date: date}
			case err != nil:
				return fmt.Errorf("load availability: %w", err)
			}

			merged, changed := mergeSlots(current.Slots, requested)
			if !changed {
				entry = current
				return nil
			}

			next := *current
			next.Slots = merged
			saved, err := s.repo.SaveAvailability(lockCtx, next)
			if err != nil {
				return err
			}
			entry = saved
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncAvailabilityWrite("merge")
	return entry, nil
}

// DeleteAvailability removes a whole entry. Any slot still open on it becomes
// unbookable; appointments already booked on that date are left as they are.
func (s *Service) DeleteAvailability(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := s.startSpan(ctx, "booking.DeleteAvailability", attribute.String("availability_id", id.String()))
	defer func() { endSpan(span, err) }()

	entry, err := s.repo.GetAvailabilityByID(ctx, id)
	if err != nil {
		return lookupErr(err, "load availability")
	}

	key := AvailabilityLockKey(entry.DoctorID, entry.Date)
	err = s.retry(ctx, func() error {
		return s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
			return s.repo.DeleteAvailability(lockCtx, id)
		})
	})
	if err != nil {
		return lookupErr(err, "delete availability")
	}

	s.metrics.IncAvailabilityWrite("delete")
	s.logEvent(ctx, nil, EventAvailabilityDeleted, map[string]any{
		"availability_id": id.String(),
		"doctor_id":       entry.DoctorID.String(),
		"date":            entry.Date,
		"open_slots":      entry.Slots,
	})
	return nil
}

// PrunePastAvailability deletes entries dated before today. It is intended to be
// called by the prune worker periodically.
func (s *Service) PrunePastAvailability(ctx context.Context) (int64, error) {
	today := s.now().Format(DateLayout)
	n, err := s.repo.DeleteAvailabilityBefore(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("prune availability before %s: %w", today, err)
	}
	if n > 0 {
		s.metrics.IncAvailabilityWrite("prune")
	}
	return n, nil
}

// ValidateDate checks that date is a calendar date in YYYY-MM-DD form.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

// NormalizeSlots trims labels, rejects blanks and drops duplicates, keeping
// first-seen order.
func NormalizeSlots(slots []string) ([]string, error) {
	if len(slots) == 0 {
		return nil, ErrEmptySlots
	}
	out := make([]string, 0, len(slots))
	seen := make(map[string]struct{}, len(slots))
	for _, raw := range slots {
		slot := strings.TrimSpace(raw)
		if slot == "" {
			return nil, ErrInvalidSlot
		}
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out, nil
}

func mergeSlots(existing, add []string) ([]string, bool) {
	merged := make([]string, 0, len(existing)+len(add))
	seen := make(map[string]struct{}, len(existing)+len(add))
	for _, s := range existing {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			merged = append(merged, s)
		}
	}
	changed := false
	for _, s := range add {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			merged = append(merged, s)
			changed = true
		}
	}
	return merged, changed
}

func removeSlot(slots []string, slot string) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if s != slot {
			out = append(out, s)
		}
	}
	return out
}
