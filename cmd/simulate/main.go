package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/store"
)

type SimConfig struct {
	APIBaseURL  string
	Workers     int
	Patients    int
	Days        int
	Slots       []string
	Attempts    int // booking attempts per (date, slot)
	ReviewRatio float64
}

// DataPool holds the fixtures the simulator created for this run.
type DataPool struct {
	DoctorID    uuid.UUID
	DoctorToken string
	Patients    []uuid.UUID
	Tokens      map[uuid.UUID]string
	Dates       []string

	mu     sync.Mutex
	booked map[string][]uuid.UUID // date|slot -> appointment ids created
}

func (dp *DataPool) AddAppointment(date, slot string, id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	k := date + "|" + slot
	dp.booked[k] = append(dp.booked[k], id)
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Transient int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.Transient, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking       OperationMetrics
	Review        OperationMetrics
	ListByPatient OperationMetrics
	ListByDoctor  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *slog.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	log := logger.New(baseCfg.Env)
	if err != nil {
		log.Error("config load error", "error", err)
		os.Exit(1)
	}

	cfg := loadSimConfig()
	if err := validateConfig(cfg); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if baseCfg.StoreBackend == config.StoreMemory {
		log.Error("the simulator provisions fixtures directly in the store; memory is not shared with the server")
		os.Exit(1)
	}

	log.Info("simulator starting",
		"workers", cfg.Workers,
		"patients", cfg.Patients,
		"days", cfg.Days,
		"slots", len(cfg.Slots),
		"attempts_per_slot", cfg.Attempts,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	backend, err := store.Open(ctx, baseCfg, log)
	if err != nil {
		log.Error("backend setup error", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	dataPool, err := provision(ctx, backend, baseCfg, cfg)
	if err != nil {
		log.Error("provision fixtures", "error", err)
		os.Exit(1)
	}
	log.Info("fixtures ready", "doctor_id", dataPool.DoctorID, "patients", len(dataPool.Patients), "dates", len(dataPool.Dates))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run(context.Background())
	sim.PrintReport()

	if violations := sim.Verify(context.Background()); violations > 0 {
		log.Error("double booking detected", "violations", violations)
		os.Exit(2)
	}
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Workers:     getInt("SIM_WORKERS", 32),
		Patients:    getInt("SIM_PATIENTS", 50),
		Days:        getInt("SIM_DAYS", 3),
		Slots:       strings.Split(getEnv("SIM_SLOTS", "09:00,09:30,10:00,10:30,11:00"), ","),
		Attempts:    getInt("SIM_ATTEMPTS_PER_SLOT", 8),
		ReviewRatio: getFloat("SIM_REVIEW_RATIO", 0.3),
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Patients <= 0 {
		return fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	if cfg.Days <= 0 || len(cfg.Slots) == 0 {
		return fmt.Errorf("SIM_DAYS and SIM_SLOTS must describe at least one slot")
	}
	if cfg.Attempts <= 0 {
		return fmt.Errorf("SIM_ATTEMPTS_PER_SLOT must be > 0")
	}
	return nil
}

// provision creates one doctor with open slots and a crowd of patients.
func provision(ctx context.Context, backend *store.Backend, base config.Config, cfg SimConfig) (*DataPool, error) {
	_ = gofakeit.Seed(time.Now().UnixNano())

	dp := &DataPool{
		DoctorID: uuid.New(),
		Tokens:   make(map[uuid.UUID]string, cfg.Patients),
		booked:   make(map[string][]uuid.UUID),
	}

	if err := backend.Repo.CreateDoctor(ctx, booking.Doctor{
		ID:             dp.DoctorID,
		Name:           "Dr. " + gofakeit.Name(),
		Email:          gofakeit.Email(),
		Specialization: "General Practice",
	}); err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	tok, err := auth.MakeToken(dp.DoctorID, auth.RoleDoctor, base.JWTSecret, time.Hour)
	if err != nil {
		return nil, err
	}
	dp.DoctorToken = tok

	for i := 0; i < cfg.Patients; i++ {
		id := uuid.New()
		if err := backend.Repo.CreatePatient(ctx, booking.Patient{
			ID:    id,
			Name:  gofakeit.Name(),
			Email: gofakeit.Email(),
		}); err != nil {
			return nil, fmt.Errorf("create patient: %w", err)
		}
		tok, err := auth.MakeToken(id, auth.RolePatient, base.JWTSecret, time.Hour)
		if err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
		dp.Tokens[id] = tok
	}

	svc := booking.NewService(backend.Repo, backend.Locker, base)
	start := time.Now().AddDate(0, 0, 1)
	for d := 0; d < cfg.Days; d++ {
		date := start.AddDate(0, 0, d).Format(booking.DateLayout)
		if _, err := svc.AddAvailability(ctx, dp.DoctorID, date, cfg.Slots); err != nil {
			return nil, fmt.Errorf("open availability %s: %w", date, err)
		}
		dp.Dates = append(dp.Dates, date)
	}
	return dp, nil
}

type bookingJob struct {
	date string
	slot string
}

// Run fires Attempts concurrent bookings at every (date, slot), each from a
// random patient, and occasionally has the doctor review a booking.
func (s *Simulator) Run(ctx context.Context) {
	var jobs []bookingJob
	for _, date := range s.pool.Dates {
		for _, slot := range s.config.Slots {
			for i := 0; i < s.config.Attempts; i++ {
				jobs = append(jobs, bookingJob{date: date, slot: slot})
			}
		}
	}
	rand.Shuffle(len(jobs), func(i, j int) { jobs[i], jobs[j] = jobs[j], jobs[i] })

	s.log.Info("starting simulation", "bookings", len(jobs), "workers", s.config.Workers)

	ch := make(chan bookingJob)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < s.config.Workers; w++ {
		workerID := w
		g.Go(func() error {
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for job := range ch {
				s.doBooking(gctx, rng, job)
				if rng.Float64() < s.config.ReviewRatio {
					s.doListByDoctor(gctx)
				} else {
					s.doListByPatient(gctx, rng)
				}
			}
			return nil
		})
	}

	for _, job := range jobs {
		ch <- job
	}
	close(ch)
	_ = g.Wait()

	s.log.Info("simulation complete")
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, job bookingJob) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]string{
		"doctor_id": s.pool.DoctorID.String(),
		"date":      job.date,
		"time_slot": job.slot,
	})

	start := time.Now()
	status, resp := s.do(ctx, http.MethodPost, "/api/appointments", s.pool.Tokens[patientID], body)
	s.metrics.Booking.Record(time.Since(start), status)

	if status != http.StatusCreated {
		return
	}
	var appt struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(resp, &appt); err == nil && appt.ID != uuid.Nil {
		s.pool.AddAppointment(job.date, job.slot, appt.ID)
		if rng.Float64() < s.config.ReviewRatio {
			s.doReview(ctx, rng, appt.ID)
		}
	}
}

func (s *Simulator) doReview(ctx context.Context, rng *rand.Rand, id uuid.UUID) {
	next := "approved"
	if rng.Intn(4) == 0 {
		next = "rejected"
	}
	body, _ := json.Marshal(map[string]string{"status": next})

	start := time.Now()
	status, _ := s.do(ctx, http.MethodPut, "/api/appointments/"+id.String()+"/status", s.pool.DoctorToken, body)
	s.metrics.Review.Record(time.Since(start), status)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _ := s.do(ctx, http.MethodGet, "/api/appointments/patient/"+patientID.String(), s.pool.Tokens[patientID], nil)
	s.metrics.ListByPatient.Record(time.Since(start), status)
}

func (s *Simulator) doListByDoctor(ctx context.Context) {
	start := time.Now()
	status, _ := s.do(ctx, http.MethodGet, "/api/appointments/doctor/"+s.pool.DoctorID.String(), s.pool.DoctorToken, nil)
	s.metrics.ListByDoctor.Record(time.Since(start), status)
}

func (s *Simulator) do(ctx context.Context, method, path, token string, body []byte) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

// Verify checks that every (date, slot) was won at most once and that the
// doctor's appointment list agrees.
func (s *Simulator) Verify(ctx context.Context) int {
	violations := 0
	for key, ids := range s.pool.booked {
		if len(ids) > 1 {
			s.log.Error("slot booked more than once", "slot", key, "appointments", ids)
			violations++
		}
	}

	status, body := s.do(ctx, http.MethodGet, "/api/appointments/doctor/"+s.pool.DoctorID.String(), s.pool.DoctorToken, nil)
	if status != http.StatusOK {
		s.log.Error("could not list doctor appointments for verification", "status", status)
		return violations + 1
	}
	var appts []struct {
		Date     string `json:"date"`
		TimeSlot string `json:"time_slot"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(body, &appts); err != nil {
		s.log.Error("decode doctor appointments", "error", err)
		return violations + 1
	}

	live := make(map[string]int)
	for _, a := range appts {
		if booking.Status(a.Status).Live() {
			live[a.Date+"|"+a.TimeSlot]++
		}
	}
	for key, n := range live {
		if n > 1 {
			s.log.Error("more than one live appointment", "slot", key, "count", n)
			violations++
		}
	}
	return violations
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contested slots: %d x %d attempts\n", len(s.pool.Dates)*len(s.config.Slots), s.config.Attempts)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Review", &s.metrics.Review)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("List by Doctor", &s.metrics.ListByDoctor)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	transient := atomic.LoadInt64(&om.Transient)
	errs := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if transient > 0 {
		fmt.Printf("  Transient: %d (%.1f%%)\n", transient, pct(transient))
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, pct(errs))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}
