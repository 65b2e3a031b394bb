package booking

import (
	"context"
	"iter"

	"github.com/google/uuid"
)

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "get appointment")
	}
	return detail, nil
}

// ListAppointmentsByDoctor yields the doctor's appointments by ascending date,
// joined with patient contact fields. Ranging again re-reads storage.
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) iter.Seq2[AppointmentDetail, error] {
	return s.repo.ListAppointmentsByDoctor(ctx, doctorID)
}

// ListAppointmentsByPatient yields the patient's appointments by ascending date,
// joined with doctor name and specialization.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) iter.Seq2[AppointmentDetail, error] {
	return s.repo.ListAppointmentsByPatient(ctx, patientID)
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[AppointmentDetail, error]) ([]AppointmentDetail, error) {
	out := make([]AppointmentDetail, 0)
	for d, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
