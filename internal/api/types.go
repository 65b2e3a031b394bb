package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/booking"
)

type AddAvailabilityRequest struct {
	Date  string   `json:"date" validate:"required,datetime=2006-01-02"`
	Slots []string `json:"slots" validate:"required,min=1,dive,required"`
}

type CreateAppointmentRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	PatientID string `json:"patient_id,omitempty" validate:"omitempty,uuid"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot  string `json:"time_slot" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type AvailabilityResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	Slots     []string  `json:"slots"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DoctorSummary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Specialization string    `json:"specialization"`
}

type PatientSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone *string   `json:"phone,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID       `json:"id"`
	DoctorID  uuid.UUID       `json:"doctor_id"`
	PatientID uuid.UUID       `json:"patient_id"`
	Date      string          `json:"date"`
	TimeSlot  string          `json:"time_slot"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Doctor    *DoctorSummary  `json:"doctor,omitempty"`
	Patient   *PatientSummary `json:"patient,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAvailabilityResponse(e booking.AvailabilityEntry) AvailabilityResponse {
	slots := e.Slots
	if slots == nil {
		slots = []string{}
	}
	return AvailabilityResponse{
		ID:        e.ID,
		DoctorID:  e.DoctorID,
		Date:      e.Date,
		Slots:     slots,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func toAppointmentResponse(a booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Date:      a.Date,
		TimeSlot:  a.TimeSlot,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type detailView int

const (
	withDoctor detailView = 1 << iota
	withPatient
)

func toDetailResponse(d booking.AppointmentDetail, view detailView) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment)
	if view&withDoctor != 0 && d.Doctor != nil {
		resp.Doctor = &DoctorSummary{
			ID:             d.Doctor.ID,
			Name:           d.Doctor.Name,
			Email:          d.Doctor.Email,
			Specialization: d.Doctor.Specialization,
		}
	}
	if view&withPatient != 0 && d.Patient != nil {
		resp.Patient = &PatientSummary{
			ID:    d.Patient.ID,
			Name:  d.Patient.Name,
			Email: d.Patient.Email,
			Phone: d.Patient.Phone,
		}
	}
	return resp
}
