package booking

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps all aggregates in process memory. It honours the same
// compare-and-swap and live-uniqueness rules as the database repositories.
type MemoryRepository struct {
	mu           sync.RWMutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	availability map[uuid.UUID]AvailabilityEntry
	appointments map[uuid.UUID]Appointment
	order        map[uuid.UUID]int
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		availability: make(map[uuid.UUID]AvailabilityEntry),
		appointments: make(map[uuid.UUID]Appointment),
		order:        make(map[uuid.UUID]int),
		now:          time.Now,
	}
}

func (r *MemoryRepository) CreateDoctor(_ context.Context, d Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.now()
	}
	r.doctors[d.ID] = d
	return nil
}

func (r *MemoryRepository) CreatePatient(_ context.Context, p Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	r.patients[p.ID] = p
	return nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListAvailability(_ context.Context, doctorID uuid.UUID) ([]AvailabilityEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AvailabilityEntry, 0)
	for _, e := range r.availability {
		if e.DoctorID == doctorID {
			out = append(out, cloneEntry(e))
		}
	}
	slices.SortFunc(out, func(a, b AvailabilityEntry) int { return cmp.Compare(a.Date, b.Date) })
	return out, nil
}

func (r *MemoryRepository) GetAvailability(_ context.Context, doctorID uuid.UUID, date string) (*AvailabilityEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.findAvailability(doctorID, date)
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	e = cloneEntry(e)
	return &e, nil
}

func (r *MemoryRepository) GetAvailabilityByID(_ context.Context, id uuid.UUID) (*AvailabilityEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.availability[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	e = cloneEntry(e)
	return &e, nil
}

func (r *MemoryRepository) SaveAvailability(_ context.Context, entry AvailabilityEntry) (*AvailabilityEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved, err := r.saveAvailabilityLocked(entry)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *MemoryRepository) saveAvailabilityLocked(entry AvailabilityEntry) (AvailabilityEntry, error) {
	now := r.now()
	if entry.Version == 0 {
		if _, exists := r.findAvailability(entry.DoctorID, entry.Date); exists {
			return AvailabilityEntry{}, ErrStaleAvailability
		}
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.Version = 1
		entry.CreatedAt = now
		entry.UpdatedAt = now
		entry = cloneEntry(entry)
		r.availability[entry.ID] = entry
		return cloneEntry(entry), nil
	}

	current, ok := r.availability[entry.ID]
	if !ok || current.Version != entry.Version {
		return AvailabilityEntry{}, ErrStaleAvailability
	}
	current.Slots = slices.Clone(entry.Slots)
	current.Version++
	current.UpdatedAt = now
	r.availability[current.ID] = current
	return cloneEntry(current), nil
}

func (r *MemoryRepository) DeleteAvailability(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.availability[id]; !ok {
		return ErrAvailabilityNotFound
	}
	delete(r.availability, id)
	return nil
}

func (r *MemoryRepository) DeleteAvailabilityBefore(_ context.Context, date string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.availability {
		if e.Date < date {
			delete(r.availability, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	d := r.detailLocked(a)
	return &d, nil
}

func (r *MemoryRepository) GetLiveAppointment(_ context.Context, doctorID uuid.UUID, date, slot string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.findLive(doctorID, date, slot)
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) CommitBooking(_ context.Context, entry AvailabilityEntry, appt Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.findLive(appt.DoctorID, appt.Date, appt.TimeSlot); taken {
		return nil, ErrSlotAlreadyBooked
	}
	current, ok := r.availability[entry.ID]
	if !ok || current.Version != entry.Version {
		return nil, ErrStaleAvailability
	}

	if _, err := r.saveAvailabilityLocked(entry); err != nil {
		return nil, err
	}

	now := r.now()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.CreatedAt = now
	appt.UpdatedAt = now
	r.appointments[appt.ID] = appt
	r.order[appt.ID] = len(r.order)
	return &appt, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID) iter.Seq2[AppointmentDetail, error] {
	return r.listAppointments(func(a Appointment) bool { return a.DoctorID == doctorID })
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) iter.Seq2[AppointmentDetail, error] {
	return r.listAppointments(func(a Appointment) bool { return a.PatientID == patientID })
}

func (r *MemoryRepository) listAppointments(match func(Appointment) bool) iter.Seq2[AppointmentDetail, error] {
	return func(yield func(AppointmentDetail, error) bool) {
		r.mu.RLock()
		var out []AppointmentDetail
		order := make(map[uuid.UUID]int)
		for _, a := range r.appointments {
			if match(a) {
				out = append(out, r.detailLocked(a))
				order[a.ID] = r.order[a.ID]
			}
		}
		r.mu.RUnlock()

		slices.SortFunc(out, func(a, b AppointmentDetail) int {
			if c := cmp.Compare(a.Date, b.Date); c != 0 {
				return c
			}
			return cmp.Compare(order[a.ID], order[b.ID])
		})
		for _, d := range out {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

func (r *MemoryRepository) findAvailability(doctorID uuid.UUID, date string) (AvailabilityEntry, bool) {
	for _, e := range r.availability {
		if e.DoctorID == doctorID && e.Date == date {
			return e, true
		}
	}
	return AvailabilityEntry{}, false
}

func (r *MemoryRepository) findLive(doctorID uuid.UUID, date, slot string) (Appointment, bool) {
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.TimeSlot == slot && a.Status.Live() {
			return a, true
		}
	}
	return Appointment{}, false
}

func (r *MemoryRepository) detailLocked(a Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	if doc, ok := r.doctors[a.DoctorID]; ok {
		d.Doctor = &doc
	}
	if p, ok := r.patients[a.PatientID]; ok {
		d.Patient = &p
	}
	return d
}

func cloneEntry(e AvailabilityEntry) AvailabilityEntry {
	e.Slots = slices.Clone(e.Slots)
	return e
}
