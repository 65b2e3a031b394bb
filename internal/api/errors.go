package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hackgods/clinic-booking/internal/booking"
)

const retryAfterSeconds = "1"

// specific sentinels get their own error code; anything else falls back to its category
var errorCodes = []struct {
	err  error
	code string
}{
	{booking.ErrDoctorNotFound, "doctor_not_found"},
	{booking.ErrPatientNotFound, "patient_not_found"},
	{booking.ErrAvailabilityNotFound, "availability_not_found"},
	{booking.ErrAppointmentNotFound, "appointment_not_found"},
	{booking.ErrSlotNotOffered, "slot_not_offered"},
	{booking.ErrEmptySlots, "empty_slots"},
	{booking.ErrInvalidDate, "invalid_date"},
	{booking.ErrInvalidSlot, "invalid_slot"},
	{booking.ErrInvalidStatus, "invalid_status"},
	{booking.ErrInvalidStatusTransition, "invalid_status_transition"},
	{booking.ErrSlotAlreadyBooked, "slot_already_booked"},
	{booking.ErrSlotBeingBooked, "slot_being_booked"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps booking error categories onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := classify(err)

	switch status {
	case http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"request_id", GetRequestID(r.Context()),
		)
		writeError(w, status, code, "an unexpected error occurred")
		return
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	code := ""
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}

	switch {
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, orDefault(code, "not_found")
	case errors.Is(err, booking.ErrValidation):
		return http.StatusBadRequest, orDefault(code, "validation_error")
	case errors.Is(err, booking.ErrConflict):
		return http.StatusConflict, orDefault(code, "conflict")
	case errors.Is(err, booking.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, orDefault(code, "temporarily_unavailable")
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func orDefault(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}
