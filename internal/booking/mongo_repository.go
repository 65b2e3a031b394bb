package booking

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores every aggregate as a document keyed by its UUID string.
// CommitBooking needs multi-document transactions, so the client must be
// connected to a replica set.
type MongoRepository struct {
	client       *mongo.Client
	doctors      *mongo.Collection
	patients     *mongo.Collection
	availability *mongo.Collection
	appointments *mongo.Collection
	events       *mongo.Collection
}

func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	db := client.Database(database)
	return &MongoRepository{
		client:       client,
		doctors:      db.Collection("doctors"),
		patients:     db.Collection("patients"),
		availability: db.Collection("availability"),
		appointments: db.Collection("appointments"),
		events:       db.Collection("event_logs"),
	}
}

// EnsureIndexes creates the uniqueness guarantees the booking core relies on.
// Mongo rejects $nin in partial filters, so live appointments carry a boolean flag.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.availability.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "doctor_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("availability_doctor_date_uniq"),
		},
		{
			Keys:    bson.D{{Key: "date", Value: 1}},
			Options: options.Index().SetName("availability_date"),
		},
	})
	if err != nil {
		return fmt.Errorf("create availability indexes: %w", err)
	}

	_, err = r.appointments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "date", Value: 1}, {Key: "time_slot", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"live": true}).
				SetName("appointments_live_slot_uniq"),
		},
		{
			Keys:    bson.D{{Key: "doctor_id", Value: 1}, {Key: "date", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("appointments_doctor_date"),
		},
		{
			Keys:    bson.D{{Key: "patient_id", Value: 1}, {Key: "date", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("appointments_patient_date"),
		},
	})
	if err != nil {
		return fmt.Errorf("create appointment indexes: %w", err)
	}
	return nil
}

// Documents

type doctorDoc struct {
	ID             string    `bson:"_id"`
	Name           string    `bson:"name"`
	Email          string    `bson:"email"`
	Specialization string    `bson:"specialization"`
	CreatedAt      time.Time `bson:"created_at"`
}

type patientDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Phone     *string   `bson:"phone,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

type availabilityDoc struct {
	ID        string    `bson:"_id"`
	DoctorID  string    `bson:"doctor_id"`
	Date      string    `bson:"date"`
	Slots     []string  `bson:"slots"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type appointmentDoc struct {
	ID        string    `bson:"_id"`
	DoctorID  string    `bson:"doctor_id"`
	PatientID string    `bson:"patient_id"`
	Date      string    `bson:"date"`
	TimeSlot  string    `bson:"time_slot"`
	Status    string    `bson:"status"`
	Live      bool      `bson:"live"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type appointmentDetailDoc struct {
	Appointment appointmentDoc `bson:",inline"`
	Doctor      *doctorDoc     `bson:"doctor,omitempty"`
	Patient     *patientDoc    `bson:"patient,omitempty"`
}

type eventDoc struct {
	EventType     string    `bson:"event_type"`
	AppointmentID *string   `bson:"appointment_id,omitempty"`
	Payload       string    `bson:"payload,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
}

func (d doctorDoc) model() (*Doctor, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode doctor id %q: %w", d.ID, err)
	}
	return &Doctor{ID: id, Name: d.Name, Email: d.Email, Specialization: d.Specialization, CreatedAt: d.CreatedAt}, nil
}

func (p patientDoc) model() (*Patient, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("decode patient id %q: %w", p.ID, err)
	}
	return &Patient{ID: id, Name: p.Name, Email: p.Email, Phone: p.Phone, CreatedAt: p.CreatedAt}, nil
}

func (a availabilityDoc) model() (*AvailabilityEntry, error) {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return nil, fmt.Errorf("decode availability id %q: %w", a.ID, err)
	}
	doctorID, err := uuid.Parse(a.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("decode availability doctor id %q: %w", a.DoctorID, err)
	}
	slots := a.Slots
	if slots == nil {
		slots = []string{}
	}
	return &AvailabilityEntry{
		ID:        id,
		DoctorID:  doctorID,
		Date:      a.Date,
		Slots:     slots,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}, nil
}

func (a appointmentDoc) model() (*Appointment, error) {
	ids := make([]uuid.UUID, 3)
	for i, raw := range []string{a.ID, a.DoctorID, a.PatientID} {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("decode appointment reference %q: %w", raw, err)
		}
		ids[i] = id
	}
	return &Appointment{
		ID:        ids[0],
		DoctorID:  ids[1],
		PatientID: ids[2],
		Date:      a.Date,
		TimeSlot:  a.TimeSlot,
		Status:    Status(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}, nil
}

func (d appointmentDetailDoc) model() (*AppointmentDetail, error) {
	a, err := d.Appointment.model()
	if err != nil {
		return nil, err
	}
	detail := &AppointmentDetail{Appointment: *a}
	if d.Doctor != nil {
		if detail.Doctor, err = d.Doctor.model(); err != nil {
			return nil, err
		}
	}
	if d.Patient != nil {
		if detail.Patient, err = d.Patient.model(); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sentinel
	}
	return err
}

// Identity store

func (r *MongoRepository) CreateDoctor(ctx context.Context, d Doctor) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.doctors.InsertOne(ctx, doctorDoc{
		ID:             d.ID.String(),
		Name:           d.Name,
		Email:          d.Email,
		Specialization: d.Specialization,
		CreatedAt:      d.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *MongoRepository) CreatePatient(ctx context.Context, p Patient) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.patients.InsertOne(ctx, patientDoc{
		ID:        p.ID.String(),
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		CreatedAt: p.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var doc doctorDoc
	if err := r.doctors.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, notFound(err, ErrDoctorNotFound)
	}
	return doc.model()
}

func (r *MongoRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var doc patientDoc
	if err := r.patients.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, notFound(err, ErrPatientNotFound)
	}
	return doc.model()
}

// Availability ledger

func (r *MongoRepository) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityEntry, error) {
	cursor, err := r.availability.Find(ctx,
		bson.M{"doctor_id": doctorID.String()},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find availability: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []availabilityDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}

	result := make([]AvailabilityEntry, 0, len(docs))
	for _, doc := range docs {
		e, err := doc.model()
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, nil
}

func (r *MongoRepository) GetAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*AvailabilityEntry, error) {
	return r.findAvailability(ctx, bson.M{"doctor_id": doctorID.String(), "date": date})
}

func (r *MongoRepository) GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*AvailabilityEntry, error) {
	return r.findAvailability(ctx, bson.M{"_id": id.String()})
}

func (r *MongoRepository) findAvailability(ctx context.Context, filter bson.M) (*AvailabilityEntry, error) {
	var doc availabilityDoc
	if err := r.availability.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err, ErrAvailabilityNotFound)
	}
	return doc.model()
}

func (r *MongoRepository) SaveAvailability(ctx context.Context, entry AvailabilityEntry) (*AvailabilityEntry, error) {
	return r.saveAvailability(ctx, entry)
}

func (r *MongoRepository) saveAvailability(ctx context.Context, entry AvailabilityEntry) (*AvailabilityEntry, error) {
	now := time.Now().UTC()

	if entry.Version == 0 {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		doc := availabilityDoc{
			ID:        entry.ID.String(),
			DoctorID:  entry.DoctorID.String(),
			Date:      entry.Date,
			Slots:     entry.Slots,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := r.availability.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrStaleAvailability
			}
			return nil, fmt.Errorf("insert availability: %w", err)
		}
		return doc.model()
	}

	var doc availabilityDoc
	err := r.availability.FindOneAndUpdate(ctx,
		bson.M{"_id": entry.ID.String(), "version": entry.Version},
		bson.M{
			"$set": bson.M{"slots": entry.Slots, "updated_at": now},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStaleAvailability
		}
		return nil, fmt.Errorf("update availability: %w", err)
	}
	return doc.model()
}

func (r *MongoRepository) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	res, err := r.availability.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrAvailabilityNotFound
	}
	return nil
}

func (r *MongoRepository) DeleteAvailabilityBefore(ctx context.Context, date string) (int64, error) {
	res, err := r.availability.DeleteMany(ctx, bson.M{"date": bson.M{"$lt": date}})
	if err != nil {
		return 0, fmt.Errorf("delete past availability: %w", err)
	}
	return res.DeletedCount, nil
}

// Appointment registry

func (r *MongoRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var doc appointmentDoc
	if err := r.appointments.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, notFound(err, ErrAppointmentNotFound)
	}
	return doc.model()
}

func (r *MongoRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	cursor, err := r.appointments.Aggregate(ctx, detailPipeline(bson.M{"_id": id.String()}))
	if err != nil {
		return nil, fmt.Errorf("aggregate appointment: %w", err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, err
		}
		return nil, ErrAppointmentNotFound
	}
	var doc appointmentDetailDoc
	if err := cursor.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode appointment: %w", err)
	}
	return doc.model()
}

func (r *MongoRepository) GetLiveAppointment(ctx context.Context, doctorID uuid.UUID, date, slot string) (*Appointment, error) {
	var doc appointmentDoc
	err := r.appointments.FindOne(ctx, bson.M{
		"doctor_id": doctorID.String(),
		"date":      date,
		"time_slot": slot,
		"live":      true,
	}).Decode(&doc)
	if err != nil {
		return nil, notFound(err, ErrAppointmentNotFound)
	}
	return doc.model()
}

func (r *MongoRepository) CommitBooking(ctx context.Context, entry AvailabilityEntry, appt Appointment) (*Appointment, error) {
	sess, err := r.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	now := time.Now().UTC()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	doc := appointmentDoc{
		ID:        appt.ID.String(),
		DoctorID:  appt.DoctorID.String(),
		PatientID: appt.PatientID.String(),
		Date:      appt.Date,
		TimeSlot:  appt.TimeSlot,
		Status:    string(appt.Status),
		Live:      appt.Status.Live(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if _, err := r.saveAvailability(sc, entry); err != nil {
			return nil, err
		}
		if _, err := r.appointments.InsertOne(sc, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrSlotAlreadyBooked
			}
			return nil, fmt.Errorf("insert appointment: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return doc.model()
}

func (r *MongoRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	var doc appointmentDoc
	err := r.appointments.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": string(from)},
		bson.M{"$set": bson.M{
			"status":     string(to),
			"live":       to.Live(),
			"updated_at": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err, ErrAppointmentNotFound)
	}
	return doc.model()
}

// Query views

func (r *MongoRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) iter.Seq2[AppointmentDetail, error] {
	return r.listDetails(ctx, bson.M{"doctor_id": doctorID.String()})
}

func (r *MongoRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) iter.Seq2[AppointmentDetail, error] {
	return r.listDetails(ctx, bson.M{"patient_id": patientID.String()})
}

func (r *MongoRepository) listDetails(ctx context.Context, match bson.M) iter.Seq2[AppointmentDetail, error] {
	return func(yield func(AppointmentDetail, error) bool) {
		cursor, err := r.appointments.Aggregate(ctx, detailPipeline(match))
		if err != nil {
			yield(AppointmentDetail{}, fmt.Errorf("aggregate appointments: %w", err))
			return
		}
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			var doc appointmentDetailDoc
			if err := cursor.Decode(&doc); err != nil {
				yield(AppointmentDetail{}, fmt.Errorf("decode appointment: %w", err))
				return
			}
			d, err := doc.model()
			if err != nil {
				yield(AppointmentDetail{}, err)
				return
			}
			if !yield(*d, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(AppointmentDetail{}, err)
		}
	}
}

func detailPipeline(match bson.M) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "doctors"},
			{Key: "localField", Value: "doctor_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "doctor"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "patients"},
			{Key: "localField", Value: "patient_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "patient"},
		}}},
		{{Key: "$unwind", Value: bson.D{{Key: "path", Value: "$doctor"}, {Key: "preserveNullAndEmptyArrays", Value: true}}}},
		{{Key: "$unwind", Value: bson.D{{Key: "path", Value: "$patient"}, {Key: "preserveNullAndEmptyArrays", Value: true}}}},
	}
}

// Event logging

func (r *MongoRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	doc := eventDoc{
		EventType: ev.EventType,
		Payload:   string(ev.Payload),
		CreatedAt: ev.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if ev.AppointmentID != nil {
		id := ev.AppointmentID.String()
		doc.AppointmentID = &id
	}
	if _, err := r.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
