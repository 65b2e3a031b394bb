package booking

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const availabilityColumns = `id, doctor_id, date, slots, version, created_at, updated_at`

const appointmentColumns = `id, doctor_id, patient_id, date, time_slot, status, created_at, updated_at`

const detailSelect = `
	SELECT a.id, a.doctor_id, a.patient_id, a.date, a.time_slot, a.status, a.created_at, a.updated_at,
	       d.id, d.name, d.email, d.specialization, d.created_at,
	       p.id, p.name, p.email, p.phone, p.created_at
	FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	JOIN patients p ON p.id = a.patient_id
`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Specialization, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var phone *string
	err := row.Scan(&p.ID, &p.Name, &p.Email, &phone, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	p.Phone = phone
	return &p, nil
}

func scanAvailability(row pgx.Row) (*AvailabilityEntry, error) {
	var e AvailabilityEntry
	err := row.Scan(&e.ID, &e.DoctorID, &e.Date, &e.Slots, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotFound
		}
		return nil, err
	}
	if e.Slots == nil {
		e.Slots = []string{}
	}
	return &e, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &a.TimeSlot, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		a     Appointment
		d     Doctor
		p     Patient
		phone *string
	)
	err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &a.TimeSlot, &a.Status, &a.CreatedAt, &a.UpdatedAt,
		&d.ID, &d.Name, &d.Email, &d.Specialization, &d.CreatedAt,
		&p.ID, &p.Name, &p.Email, &phone, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	p.Phone = phone
	return &AppointmentDetail{Appointment: a, Doctor: &d, Patient: &p}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Identity store

func (r *PgRepository) CreateDoctor(ctx context.Context, d Doctor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, email, specialization, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, d.ID, d.Name, d.Email, d.Specialization)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, p.ID, p.Name, p.Email, p.Phone)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, specialization, created_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

// Availability ledger

func (r *PgRepository) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability
		WHERE doctor_id = $1
		ORDER BY date
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]AvailabilityEntry, 0)
	for rows.Next() {
		e, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*AvailabilityEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date)
	return scanAvailability(row)
}

func (r *PgRepository) GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*AvailabilityEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability
		WHERE id = $1
	`, id)
	return scanAvailability(row)
}

func (r *PgRepository) SaveAvailability(ctx context.Context, entry AvailabilityEntry) (*AvailabilityEntry, error) {
	return saveAvailability(ctx, r.pool, entry)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func saveAvailability(ctx context.Context, q querier, entry AvailabilityEntry) (*AvailabilityEntry, error) {
	var row pgx.Row
	if entry.Version == 0 {
		id := entry.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		row = q.QueryRow(ctx, `
			INSERT INTO availability (id, doctor_id, date, slots, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, now(), now())
			ON CONFLICT (doctor_id, date) DO NOTHING
			RETURNING `+availabilityColumns, id, entry.DoctorID, entry.Date, entry.Slots)
	} else {
		row = q.QueryRow(ctx, `
			UPDATE availability
			SET slots = $3,
			    version = version + 1,
			    updated_at = now()
			WHERE id = $1
			  AND version = $2
			RETURNING `+availabilityColumns, entry.ID, entry.Version, entry.Slots)
	}

	saved, err := scanAvailability(row)
	if errors.Is(err, ErrAvailabilityNotFound) {
		return nil, ErrStaleAvailability
	}
	if err != nil {
		return nil, fmt.Errorf("save availability: %w", err)
	}
	return saved, nil
}

func (r *PgRepository) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAvailabilityNotFound
	}
	return nil
}

func (r *PgRepository) DeleteAvailabilityBefore(ctx context.Context, date string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability WHERE date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("delete past availability: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Appointment registry

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) GetLiveAppointment(ctx context.Context, doctorID uuid.UUID, date, slot string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND time_slot = $3
		  AND status NOT IN ('rejected', 'cancelled')
	`, doctorID, date, slot)
	return scanAppointment(row)
}

func (r *PgRepository) CommitBooking(ctx context.Context, entry AvailabilityEntry, appt Appointment) (*Appointment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := saveAvailability(ctx, tx, entry); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, time_slot, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+appointmentColumns,
		appt.ID, appt.DoctorID, appt.PatientID, appt.Date, appt.TimeSlot, appt.Status)
	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, to, from)

	return scanAppointment(row)
}

// Query views

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) iter.Seq2[AppointmentDetail, error] {
	return r.listDetails(ctx, `a.doctor_id = $1`, doctorID)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) iter.Seq2[AppointmentDetail, error] {
	return r.listDetails(ctx, `a.patient_id = $1`, patientID)
}

func (r *PgRepository) listDetails(ctx context.Context, where string, arg any) iter.Seq2[AppointmentDetail, error] {
	return func(yield func(AppointmentDetail, error) bool) {
		rows, err := r.pool.Query(ctx, detailSelect+` WHERE `+where+` ORDER BY a.date, a.created_at`, arg)
		if err != nil {
			yield(AppointmentDetail{}, fmt.Errorf("list appointments: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			d, err := scanDetail(rows)
			if err != nil {
				yield(AppointmentDetail{}, err)
				return
			}
			if !yield(*d, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(AppointmentDetail{}, err)
		}
	}
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
