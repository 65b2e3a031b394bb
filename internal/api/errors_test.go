package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/booking"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"doctor", booking.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{"wrapped appointment", fmt.Errorf("load: %w", booking.ErrAppointmentNotFound), http.StatusNotFound, "appointment_not_found"},
		{"bare not found", booking.ErrNotFound, http.StatusNotFound, "not_found"},
		{"not offered", booking.ErrSlotNotOffered, http.StatusBadRequest, "slot_not_offered"},
		{"bare validation", booking.ErrValidation, http.StatusBadRequest, "validation_error"},
		{"already booked", booking.ErrSlotAlreadyBooked, http.StatusConflict, "slot_already_booked"},
		{"being booked", booking.ErrSlotBeingBooked, http.StatusServiceUnavailable, "slot_being_booked"},
		{"transient", booking.ErrTransient, http.StatusServiceUnavailable, "temporarily_unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "temporarily_unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	t.Run("transient sets Retry-After", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeServiceError(rec, req, logger, booking.ErrSlotBeingBooked)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("internal errors are not leaked", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeServiceError(rec, req, logger, errors.New("pq: connection refused to 10.1.2.3"))
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "internal_error", body.Error)
		assert.NotContains(t, body.Details, "10.1.2.3")
		assert.Empty(t, rec.Header().Get("Retry-After"))
	})
}
