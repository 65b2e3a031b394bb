package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/booking"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	svc      *booking.Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(svc *booking.Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// decode reads a JSON body strictly and runs the struct's validation tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "body must contain a single JSON object")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag())
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing caller identity")
	}
	return id, ok
}

func forbid(w http.ResponseWriter, details string) {
	writeError(w, http.StatusForbidden, "forbidden", details)
}

// Availability

func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	entries, err := h.svc.ListAvailability(r.Context(), doctorID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]AvailabilityResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toAvailabilityResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) AddAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if who.Role != auth.RoleDoctor || who.UserID != doctorID {
		forbid(w, "only the doctor can change their availability")
		return
	}

	var req AddAvailabilityRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.svc.AddAvailability(r.Context(), doctorID, req.Date, req.Slots)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAvailabilityResponse(*entry))
}

func (h *Handler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	entryID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	who, ok := caller(w, r)
	if !ok {
		return
	}

	entry, err := h.svc.GetAvailabilityEntry(r.Context(), entryID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if who.Role != auth.RoleDoctor || who.UserID != entry.DoctorID {
		forbid(w, "only the doctor can delete their availability")
		return
	}

	if err := h.svc.DeleteAvailability(r.Context(), entryID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "availability deleted"})
}

// Appointments

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if who.Role != auth.RolePatient {
		forbid(w, "only patients can book appointments")
		return
	}

	var req CreateAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	doctorID := uuid.MustParse(req.DoctorID)
	patientID := who.UserID
	if req.PatientID != "" {
		patientID = uuid.MustParse(req.PatientID)
		if patientID != who.UserID {
			forbid(w, "patients can only book for themselves")
			return
		}
	}

	appt, err := h.svc.BookAppointment(r.Context(), booking.BookingRequest{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      req.Date,
		TimeSlot:  req.TimeSlot,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	who, ok := caller(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if who.UserID != detail.DoctorID && who.UserID != detail.PatientID {
		forbid(w, "not a participant of this appointment")
		return
	}
	writeJSON(w, http.StatusOK, toDetailResponse(*detail, withDoctor|withPatient))
}

func (h *Handler) ListDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if who.Role != auth.RoleDoctor || who.UserID != doctorID {
		forbid(w, "doctors can only list their own appointments")
		return
	}

	details, err := booking.Collect(h.svc.ListAppointmentsByDoctor(r.Context(), doctorID))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detailsResponse(details, withPatient))
}

func (h *Handler) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, ok := uuidParam(w, r, "patientID")
	if !ok {
		return
	}
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if who.Role != auth.RolePatient || who.UserID != patientID {
		forbid(w, "patients can only list their own appointments")
		return
	}

	details, err := booking.Collect(h.svc.ListAppointmentsByPatient(r.Context(), patientID))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detailsResponse(details, withDoctor))
}

func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	who, ok := caller(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := booking.ParseStatus(req.Status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	current, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if who.Role != auth.RoleDoctor || who.UserID != current.DoctorID {
		forbid(w, "only the appointment's doctor can change its status")
		return
	}

	updated, err := h.svc.UpdateStatus(r.Context(), id, status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*updated))
}

func detailsResponse(details []booking.AppointmentDetail, view detailView) []AppointmentResponse {
	resp := make([]AppointmentResponse, 0, len(details))
	for _, d := range details {
		resp = append(resp, toDetailResponse(d, view))
	}
	return resp
}
