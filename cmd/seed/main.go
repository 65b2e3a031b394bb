package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/store"
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var daySlots = []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "14:00", "14:30", "15:00", "15:30"}

func main() {
	doctors := flag.Int("doctors", 20, "number of doctors to create")
	patients := flag.Int("patients", 500, "number of patients to create")
	days := flag.Int("days", 14, "days of availability to open per doctor, starting tomorrow")
	flag.Parse()

	cfg, err := config.Load()
	log := logger.New(cfg.Env)
	if err != nil {
		log.Error("config load error", "error", err)
		os.Exit(1)
	}
	if cfg.StoreBackend == config.StoreMemory {
		log.Error("seeding the in-memory store has no lasting effect; choose postgres or mongo")
		os.Exit(1)
	}

	log.Info("seed starting", "store", cfg.StoreBackend, "doctors", *doctors, "patients", *patients, "days", *days)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	backend, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Error("backend setup error", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	_ = gofakeit.Seed(time.Now().UnixNano())

	svc := booking.NewService(backend.Repo, backend.Locker, cfg, booking.WithLogger(log))

	doctorIDs, err := seedDoctors(ctx, log, backend.Repo, *doctors)
	if err != nil {
		log.Error("seed doctors", "error", err)
		os.Exit(1)
	}
	patientIDs, err := seedPatients(ctx, log, backend.Repo, *patients)
	if err != nil {
		log.Error("seed patients", "error", err)
		os.Exit(1)
	}
	if err := seedAvailability(ctx, log, svc, doctorIDs, *days); err != nil {
		log.Error("seed availability", "error", err)
		os.Exit(1)
	}

	if len(doctorIDs) > 0 && len(patientIDs) > 0 {
		printToken(cfg.JWTSecret, doctorIDs[0], auth.RoleDoctor)
		printToken(cfg.JWTSecret, patientIDs[0], auth.RolePatient)
	}

	log.Info("seed complete")
}

func seedDoctors(ctx context.Context, log *slog.Logger, w booking.IdentityWriter, count int) ([]uuid.UUID, error) {
	log.Info("seeding doctors", "count", count)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		d := booking.Doctor{
			ID:             uuid.New(),
			Name:           "Dr. " + gofakeit.Name(),
			Email:          gofakeit.Email(),
			Specialization: specializations[gofakeit.Number(0, len(specializations)-1)],
		}
		if err := w.CreateDoctor(ctx, d); err != nil {
			return nil, err
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func seedPatients(ctx context.Context, log *slog.Logger, w booking.IdentityWriter, count int) ([]uuid.UUID, error) {
	log.Info("seeding patients", "count", count)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		phone := gofakeit.Phone()
		p := booking.Patient{
			ID:    uuid.New(),
			Name:  gofakeit.Name(),
			Email: gofakeit.Email(),
			Phone: &phone,
		}
		if err := w.CreatePatient(ctx, p); err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)

		if (i+1)%500 == 0 {
			log.Info("patients seeded", "done", i+1, "total", count)
		}
	}
	return ids, nil
}

func seedAvailability(ctx context.Context, log *slog.Logger, svc *booking.Service, doctorIDs []uuid.UUID, days int) error {
	log.Info("seeding availability", "doctors", len(doctorIDs), "days", days)

	start := time.Now().AddDate(0, 0, 1)
	for _, id := range doctorIDs {
		for d := 0; d < days; d++ {
			date := start.AddDate(0, 0, d).Format(booking.DateLayout)
			// not every doctor works every slot
			n := gofakeit.Number(3, len(daySlots))
			if _, err := svc.AddAvailability(ctx, id, date, daySlots[:n]); err != nil {
				return fmt.Errorf("doctor %s date %s: %w", id, date, err)
			}
		}
	}
	return nil
}

func printToken(secret string, id uuid.UUID, role auth.Role) {
	tok, err := auth.MakeToken(id, role, secret, 24*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "make %s token: %v\n", role, err)
		return
	}
	fmt.Printf("%s_id=%s\n%s_token=%s\n", role, id, role, tok)
}
