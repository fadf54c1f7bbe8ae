package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/doctor-availability-scheduling/internal/api"
	"github.com/hackgods/doctor-availability-scheduling/internal/config"
	"github.com/hackgods/doctor-availability-scheduling/internal/db"
	"github.com/hackgods/doctor-availability-scheduling/internal/logging"
	"github.com/hackgods/doctor-availability-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	RaceSlots     int
	RacersPerSlot int
	BookingRatio  float64
	CancelRatio   float64
	PatientLimit  int
	SlotLimit     int
}

type slotRef struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
	Date     string
}

type booking struct {
	ID      uuid.UUID
	Patient scheduling.Identity
}

type DataPool struct {
	Patients []scheduling.Identity
	Slots    []slotRef

	mu       sync.Mutex
	bookings []booking
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

// TakeBooking removes and returns a random booking so it is cancelled at most once.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	idx := rng.Intn(len(dp.bookings))
	b := dp.bookings[idx]
	dp.bookings[idx] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	at := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), at(50), at(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Race      OperationMetrics
	Booking   OperationMetrics
	Cancel    OperationMetrics
	ListSlots OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	auth    func(req *http.Request, id scheduling.Identity) error
	metrics Metrics
	logger  zerolog.Logger

	raceWinners map[uuid.UUID]int
	raceMu      sync.Mutex
}

func main() {
	var sim SimConfig

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Race concurrent bookings against a running api-server and check exclusivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), sim)
		},
	}
	f := cmd.Flags()
	f.StringVar(&sim.APIBaseURL, "api", "http://localhost:8080", "api-server base URL")
	f.DurationVar(&sim.Duration, "duration", 30*time.Second, "length of the mixed-load phase")
	f.IntVar(&sim.Workers, "workers", 10, "concurrent workers in the mixed-load phase")
	f.IntVar(&sim.RaceSlots, "race-slots", 20, "slots contested in the race phase")
	f.IntVar(&sim.RacersPerSlot, "racers", 8, "patients racing for each contested slot")
	f.Float64Var(&sim.BookingRatio, "booking-ratio", 0.5, "share of mixed-load operations that book")
	f.Float64Var(&sim.CancelRatio, "cancel-ratio", 0.2, "share of mixed-load operations that cancel")
	f.IntVar(&sim.PatientLimit, "patients", 4000, "patients loaded from the directory")
	f.IntVar(&sim.SlotLimit, "slots", 2400, "available slots loaded from the store")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, simCfg SimConfig) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("simulate reads its data set from Postgres; set STORE=postgres")
	}
	if simCfg.Workers <= 0 || simCfg.Duration <= 0 {
		return fmt.Errorf("workers and duration must be > 0")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(loadCtx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(loadCtx, pgPool, simCfg)
	if err != nil {
		return fmt.Errorf("load data pool: %w", err)
	}
	logger.Info().Int("patients", len(dataPool.Patients)).Int("slots", len(dataPool.Slots)).Msg("data pool loaded")

	s := &Simulator{
		config:      simCfg,
		pool:        dataPool,
		client:      &http.Client{Timeout: 10 * time.Second},
		auth:        authorizer(cfg),
		logger:      logger,
		raceWinners: make(map[uuid.UUID]int),
	}

	if err := s.Race(ctx); err != nil {
		return err
	}
	s.Run(ctx)
	s.PrintReport()

	violations, err := checkInvariants(ctx, pgPool)
	if err != nil {
		return fmt.Errorf("check invariants: %w", err)
	}
	if violations > 0 {
		return fmt.Errorf("%d slot(s) violate the booking invariants", violations)
	}
	fmt.Println("Store invariants: OK (every slot has at most one active appointment and matching state)")
	return nil
}

// authorizer signs a short-lived token per request when JWT_SECRET is set,
// and falls back to the dev identity headers otherwise.
func authorizer(cfg config.Config) func(*http.Request, scheduling.Identity) error {
	if cfg.JWTSecret == "" {
		return func(req *http.Request, id scheduling.Identity) error {
			req.Header.Set("X-User-ID", id.UserID.String())
			req.Header.Set("X-User-Role", string(id.Role))
			return nil
		}
	}
	return func(req *http.Request, id scheduling.Identity) error {
		token, err := api.IssueToken(cfg.JWTSecret, id, 5*time.Minute)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, scheduling.Identity{UserID: id, Role: scheduling.RolePatient})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT id, doctor_id, to_char(date, 'YYYY-MM-DD')
		FROM time_slots
		WHERE state = 'Available' AND date >= CURRENT_DATE
		ORDER BY date, start_time
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var s slotRef
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.Date); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded")
	}
	return dataPool, nil
}

// Race sends RacersPerSlot simultaneous bookings for each of the first
// RaceSlots slots from distinct patients. Exactly one must win per slot.
func (s *Simulator) Race(ctx context.Context) error {
	slots := s.pool.Slots[:min(s.config.RaceSlots, len(s.pool.Slots))]
	racers := min(s.config.RacersPerSlot, len(s.pool.Patients))
	s.logger.Info().Int("slots", len(slots)).Int("racers", racers).Msg("starting race phase")

	g, gctx := errgroup.WithContext(ctx)
	start := make(chan struct{})
	for i, slot := range slots {
		for j := 0; j < racers; j++ {
			patient := s.pool.Patients[(i*racers+j)%len(s.pool.Patients)]
			g.Go(func() error {
				<-start
				ok, conflict, latency := s.book(gctx, patient, slot.ID)
				s.metrics.Race.Record(latency, ok, conflict)
				if ok {
					s.raceMu.Lock()
					s.raceWinners[slot.ID]++
					s.raceMu.Unlock()
				}
				return nil
			})
		}
	}
	close(start)
	_ = g.Wait()

	var lost int
	for _, slot := range slots {
		switch s.raceWinners[slot.ID] {
		case 1:
		case 0:
			lost++
		default:
			return fmt.Errorf("slot %s was booked %d times", slot.ID, s.raceWinners[slot.ID])
		}
	}
	if lost > 0 {
		s.logger.Warn().Int("slots", lost).Msg("race slots with no winner (all requests failed)")
	}
	s.pool.Slots = s.pool.Slots[len(slots):]
	return nil
}

func (s *Simulator) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting mixed-load phase")

	var g errgroup.Group
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(ctx, workerID)
			return nil
		})
	}
	_ = g.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				s.doListSlots(ctx, rng)
			}
		}
	}
}

func (s *Simulator) book(ctx context.Context, patient scheduling.Identity, slotID uuid.UUID) (ok, conflict bool, latency time.Duration) {
	body, _ := json.Marshal(api.BookAppointmentRequest{SlotID: slotID.String()})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return false, false, 0
	}
	req.Header.Set("Content-Type", "application/json")
	if err := s.auth(req, patient); err != nil {
		return false, false, 0
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency = time.Since(start)
	if err != nil {
		return false, false, latency
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var appt api.AppointmentResponse
		if err := json.NewDecoder(resp.Body).Decode(&appt); err == nil && appt.ID != uuid.Nil {
			s.pool.AddBooking(booking{ID: appt.ID, Patient: patient})
		}
		return true, false, latency
	case http.StatusConflict:
		return false, true, latency
	}
	return false, false, latency
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Slots) == 0 {
		return
	}
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	ok, conflict, latency := s.book(ctx, patient, slot.ID)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(latency, ok, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, b.ID), nil)
	if err != nil || s.auth(req, b.Patient) != nil {
		return
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusNotFound
	}
	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Slots) == 0 {
		return
	}
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/doctors/%s/slots?date=%s&limit=20", s.config.APIBaseURL, slot.DoctorID, slot.Date), nil)
	if err != nil || s.auth(req, patient) != nil {
		return
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.ListSlots.Record(latency, success, false)
}

// checkInvariants counts slots whose state disagrees with their active
// appointments, or that have more than one active appointment.
func checkInvariants(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var violations int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT s.id
			FROM time_slots s
			LEFT JOIN appointments a ON a.slot_id = s.id AND a.status <> 'Cancelled'
			GROUP BY s.id, s.state
			HAVING COUNT(a.id) > 1
			    OR (s.state = 'Booked') <> (COUNT(a.id) = 1)
		) bad
	`).Scan(&violations)
	return violations, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	winners := 0
	for _, n := range s.raceWinners {
		winners += n
	}
	fmt.Printf("Race phase: %d contested slots, %d winners\n\n", len(s.raceWinners), winners)

	printOperationReport("Race booking", &s.metrics.Race)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List slots", &s.metrics.ListSlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}
